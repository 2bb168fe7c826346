package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/sentinel"
)

// Directory is the read-only view of people the core consumes.
type Directory interface {
	FindPersonByID(ctx context.Context, id string) (*models.Person, error)
	FindPersonByPhone(ctx context.Context, phone string) (*models.Person, error)
	FindPersonByEmail(ctx context.Context, email string) (*models.Person, error)
	FindVisitorByPhone(ctx context.Context, churchID, phone string) (*models.Visitor, error)
	FindVisitorByEmail(ctx context.Context, churchID, email string) (*models.Visitor, error)
}

// GormDirectory reads the people and visitors tables.
type GormDirectory struct {
	db     *gorm.DB
	phones Phones
}

func NewGormDirectory(db *gorm.DB, phones Phones) *GormDirectory {
	return &GormDirectory{db: db, phones: phones}
}

// strips +, spaces, -, () from a stored phone column so it can be compared digit-for-digit
const digitsOnlyPhoneSQL = `REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(phone,'+',''),' ',''),'-',''),'(',''),')','')`

func (d *GormDirectory) FindPersonByID(ctx context.Context, id string) (*models.Person, error) {
	var p models.Person
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, lookupErr(err, sentinel.ErrPersonNotFound)
	}
	return &p, models.Validate(&p)
}

// FindPersonByPhone tries every stored spelling first, then a digits-only compare.
func (d *GormDirectory) FindPersonByPhone(ctx context.Context, phone string) (*models.Person, error) {
	var p models.Person
	if err := d.byPhone(ctx, d.db.Model(&models.Person{}), phone, &p); err != nil {
		return nil, err
	}
	return &p, models.Validate(&p)
}

func (d *GormDirectory) FindPersonByEmail(ctx context.Context, email string) (*models.Person, error) {
	e, ok := NormEmail(email)
	if !ok || e == "" {
		return nil, sentinel.ErrPersonNotFound
	}
	var p models.Person
	if err := d.db.WithContext(ctx).Where("LOWER(email) = ?", e).First(&p).Error; err != nil {
		return nil, lookupErr(err, sentinel.ErrPersonNotFound)
	}
	return &p, models.Validate(&p)
}

func (d *GormDirectory) FindVisitorByPhone(ctx context.Context, churchID, phone string) (*models.Visitor, error) {
	var v models.Visitor
	q := d.db.Model(&models.Visitor{}).Where("church_id = ?", churchID)
	if err := d.byPhone(ctx, q, phone, &v); err != nil {
		return nil, err
	}
	return &v, models.Validate(&v)
}

func (d *GormDirectory) FindVisitorByEmail(ctx context.Context, churchID, email string) (*models.Visitor, error) {
	e, ok := NormEmail(email)
	if !ok || e == "" {
		return nil, sentinel.ErrPersonNotFound
	}
	var v models.Visitor
	if err := d.db.WithContext(ctx).Where("church_id = ? AND LOWER(email) = ?", churchID, e).First(&v).Error; err != nil {
		return nil, lookupErr(err, sentinel.ErrPersonNotFound)
	}
	return &v, models.Validate(&v)
}

func (d *GormDirectory) byPhone(ctx context.Context, base *gorm.DB, phone string, dest any) error {
	variants := d.phones.Variants(phone)
	if len(variants) > 0 {
		err := base.Session(&gorm.Session{}).WithContext(ctx).Where("phone IN ?", variants).First(dest).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	if digits := DigitsOnly(phone); digits != "" {
		err := base.Session(&gorm.Session{}).WithContext(ctx).Where(digitsOnlyPhoneSQL+" = ?", digits).First(dest).Error
		if err == nil {
			return nil
		}
		return lookupErr(err, sentinel.ErrPersonNotFound)
	}
	return sentinel.ErrPersonNotFound
}

// lookupErr maps gorm's not-found to the given sentinel and wraps anything else.
func lookupErr(err, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return fmt.Errorf("store: %w", err)
}
