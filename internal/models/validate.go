package models

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/lojf/attendance/internal/sentinel"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func v() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// Validate checks a record read from (or about to be written to) the store
// against its struct tags.
func Validate(rec any) error {
	if err := v().Struct(rec); err != nil {
		return fmt.Errorf("%w: %T: %v", sentinel.ErrValidation, rec, err)
	}
	return nil
}

// ValidateAll runs Validate over a slice of records, stopping at the first failure.
func ValidateAll[T any](recs []T) error {
	for i := range recs {
		if err := Validate(&recs[i]); err != nil {
			return err
		}
	}
	return nil
}
