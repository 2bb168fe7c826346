package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/sentinel"
)

// Catalog is the event catalog the core consumes.
type Catalog interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	GetSubcategory(ctx context.Context, subcategoryID string) (*models.Subcategory, error)
	GetEventsBySubcategory(ctx context.Context, subcategoryID string) ([]models.Event, error)
	ListRoomsForEvent(ctx context.Context, eventID string) ([]models.EventRoom, error)
	AssignRooms(ctx context.Context, eventID string, rooms []models.EventRoom) error
}

type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (c *GormCatalog) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var ev models.Event
	if err := c.db.WithContext(ctx).Where("id = ?", eventID).First(&ev).Error; err != nil {
		return nil, lookupErr(err, fmt.Errorf("event %s: %w", eventID, sentinel.ErrNotFound))
	}
	return &ev, models.Validate(&ev)
}

func (c *GormCatalog) GetSubcategory(ctx context.Context, subcategoryID string) (*models.Subcategory, error) {
	var sc models.Subcategory
	if err := c.db.WithContext(ctx).Where("id = ?", subcategoryID).First(&sc).Error; err != nil {
		return nil, lookupErr(err, fmt.Errorf("subcategory %s: %w", subcategoryID, sentinel.ErrNotFound))
	}
	return &sc, models.Validate(&sc)
}

// GetEventsBySubcategory returns the subcategory's events by order, then start.
func (c *GormCatalog) GetEventsBySubcategory(ctx context.Context, subcategoryID string) ([]models.Event, error) {
	var evs []models.Event
	if err := c.db.WithContext(ctx).
		Where("subcategory_id = ?", subcategoryID).
		Order("sort_order asc, start_at asc").
		Find(&evs).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return evs, models.ValidateAll(evs)
}

func (c *GormCatalog) ListRoomsForEvent(ctx context.Context, eventID string) ([]models.EventRoom, error) {
	var rooms []models.EventRoom
	if err := c.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("room_name asc").
		Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return rooms, models.ValidateAll(rooms)
}

// AssignRooms replaces the event's room list.
func (c *GormCatalog) AssignRooms(ctx context.Context, eventID string, rooms []models.EventRoom) error {
	if _, err := c.GetEvent(ctx, eventID); err != nil {
		return err
	}
	clean := make([]models.EventRoom, 0, len(rooms))
	seen := map[string]bool{}
	for _, r := range rooms {
		r.RoomID = strings.TrimSpace(r.RoomID)
		r.RoomName = strings.TrimSpace(r.RoomName)
		if r.RoomID == "" {
			return fmt.Errorf("%w: room id required", sentinel.ErrValidation)
		}
		if seen[r.RoomID] {
			continue
		}
		seen[r.RoomID] = true
		if r.RoomName == "" {
			r.RoomName = r.RoomID
		}
		r.EventID = eventID
		clean = append(clean, r)
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", eventID).Delete(&models.EventRoom{}).Error; err != nil {
			return err
		}
		if len(clean) == 0 {
			return nil
		}
		return tx.Create(&clean).Error
	})
}
