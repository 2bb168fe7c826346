package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/metrics"
	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/operator"
	"github.com/lojf/attendance/internal/sentinel"
)

// RegisterStatus is the outcome of Ledger.Register.
type RegisterStatus string

const (
	RegisterCreated       RegisterStatus = "created"
	RegisterAlreadyExists RegisterStatus = "already-exists"
)

type RegisterResult struct {
	Status       RegisterStatus       `json:"status"`
	Registration *models.Registration `json:"registration"`
}

// Ledger keeps at most one Registration per (event, person).
type Ledger struct {
	db      *gorm.DB
	catalog Catalog
	dir     Directory
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewLedger(db *gorm.DB, catalog Catalog, dir Directory, pub events.Publisher, m *metrics.Metrics, log *slog.Logger) *Ledger {
	return &Ledger{db: db, catalog: catalog, dir: dir, pub: pub, metrics: m, log: log, now: time.Now}
}

func validSource(s string) bool {
	switch s {
	case models.SourceQRScan, models.SourceManualCheckin, models.SourceEmbeddedForm:
		return true
	}
	return false
}

// Register looks up the pair and writes only when absent. A repeat returns
// RegisterAlreadyExists with the stored row so callers can continue to the
// next step (e.g. child check-in) without writing.
func (l *Ledger) Register(ctx context.Context, op operator.Operator, eventID, personID, source string) (*RegisterResult, error) {
	eventID, personID = strings.TrimSpace(eventID), strings.TrimSpace(personID)
	if eventID == "" || personID == "" {
		return nil, fmt.Errorf("%w: event and person are required", sentinel.ErrValidation)
	}
	if !validSource(source) {
		return nil, fmt.Errorf("%w: unknown source %q", sentinel.ErrValidation, source)
	}
	ev, err := l.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if _, err := l.dir.FindPersonByID(ctx, personID); err != nil {
		return nil, err
	}
	churchID := op.ChurchID
	if churchID == "" {
		churchID = ev.ChurchID
	}

	var res RegisterResult
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findRegistration(tx, eventID, personID)
		if err == nil {
			res = RegisterResult{Status: RegisterAlreadyExists, Registration: existing}
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		reg := &models.Registration{
			ID:           uuid.NewString(),
			EventID:      eventID,
			PersonID:     personID,
			ChurchID:     churchID,
			Status:       models.RegStatusRegistered,
			RegisteredAt: l.now(),
			Source:       source,
		}
		if err := tx.Create(reg).Error; err != nil {
			return err
		}
		res = RegisterResult{Status: RegisterCreated, Registration: reg}
		return nil
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// another session registered the same pair between our lookup and write
		existing, ferr := findRegistration(l.db.WithContext(ctx), eventID, personID)
		if ferr != nil {
			l.log.Warn("registration race lost and winner vanished", "event_id", eventID, "person_id", personID)
			return nil, fmt.Errorf("register %s/%s: %w", eventID, personID, sentinel.ErrWriteConflict)
		}
		res = RegisterResult{Status: RegisterAlreadyExists, Registration: existing}
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	l.metrics.Registration(string(res.Status))
	if res.Status == RegisterCreated {
		l.log.Info("registration created",
			"event_id", eventID, "person_id", personID, "source", source, "operator", op.ID)
		events.Emit(l.pub, events.KindRegistration, eventID, res.Registration.ID, "created")
	}
	return &res, nil
}

func findRegistration(tx *gorm.DB, eventID, personID string) (*models.Registration, error) {
	var reg models.Registration
	err := tx.Where("event_id = ? AND person_id = ?", eventID, personID).
		Order("registered_at asc").
		First(&reg).Error
	if err != nil {
		return nil, lookupErr(err, sentinel.ErrNotFound)
	}
	return &reg, models.Validate(&reg)
}

func (l *Ledger) Get(ctx context.Context, registrationID string) (*models.Registration, error) {
	var reg models.Registration
	if err := l.db.WithContext(ctx).Where("id = ?", registrationID).First(&reg).Error; err != nil {
		return nil, lookupErr(err, fmt.Errorf("registration %s: %w", registrationID, sentinel.ErrNotFound))
	}
	return &reg, models.Validate(&reg)
}

// Exists reports whether the person holds a registration for the event.
func (l *Ledger) Exists(ctx context.Context, eventID, personID string) (bool, error) {
	var n int64
	if err := l.db.WithContext(ctx).Model(&models.Registration{}).
		Where("event_id = ? AND person_id = ?", eventID, personID).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	return n > 0, nil
}

// Remove hard-deletes a registration.
func (l *Ledger) Remove(ctx context.Context, registrationID string) error {
	reg, err := l.Get(ctx, registrationID)
	if err != nil {
		return err
	}
	res := l.db.WithContext(ctx).Where("id = ?", registrationID).Delete(&models.Registration{})
	if res.Error != nil {
		return fmt.Errorf("store: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("registration %s: %w", registrationID, sentinel.ErrNotFound)
	}
	l.log.Info("registration removed", "registration_id", registrationID, "event_id", reg.EventID)
	events.Emit(l.pub, events.KindRegistration, reg.EventID, registrationID, "deleted")
	return nil
}

// Edit applies a free-form patch. status, notes and source map to columns;
// every other key lands in the Extra JSON document. Identity columns are fixed.
func (l *Ledger) Edit(ctx context.Context, registrationID string, fields map[string]any) (*models.Registration, error) {
	var out *models.Registration
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg models.Registration
		if err := tx.Where("id = ?", registrationID).First(&reg).Error; err != nil {
			return lookupErr(err, fmt.Errorf("registration %s: %w", registrationID, sentinel.ErrNotFound))
		}

		for k, v := range fields {
			switch k {
			case "id", "eventId", "personId", "churchId", "registeredAt":
				return fmt.Errorf("%w: %s cannot be edited", sentinel.ErrValidation, k)
			case "status":
				s, ok := v.(string)
				if !ok || strings.TrimSpace(s) == "" {
					return fmt.Errorf("%w: status must be a non-empty string", sentinel.ErrValidation)
				}
				reg.Status = strings.TrimSpace(s)
			case "notes":
				if v == nil {
					reg.Notes = ""
					break
				}
				s, ok := v.(string)
				if !ok {
					return fmt.Errorf("%w: notes must be a string", sentinel.ErrValidation)
				}
				reg.Notes = s
			case "source":
				s, _ := v.(string)
				if !validSource(s) {
					return fmt.Errorf("%w: unknown source %q", sentinel.ErrValidation, s)
				}
				reg.Source = s
			default:
				if reg.Extra == nil {
					reg.Extra = datatypes.JSONMap{}
				}
				if v == nil {
					delete(reg.Extra, k)
				} else {
					reg.Extra[k] = v
				}
			}
		}
		if err := models.Validate(&reg); err != nil {
			return err
		}
		if err := tx.Save(&reg).Error; err != nil {
			return err
		}
		out = &reg
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("edit registration: %w", err)
	}
	events.Emit(l.pub, events.KindRegistration, out.EventID, out.ID, "updated")
	return out, nil
}

// ListByEvent returns the event's registrations, newest first.
func (l *Ledger) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	if err := l.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("registered_at desc").
		Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return regs, models.ValidateAll(regs)
}
