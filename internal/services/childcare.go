package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/metrics"
	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/sentinel"
)

type CheckInRequest struct {
	EventID   string `json:"eventId"`
	ParentID  string `json:"parentId"`
	ChildName string `json:"childName"`
	Age       int    `json:"age"`
	Allergies string `json:"allergies"`
	RoomID    string `json:"roomId"`
	Notes     string `json:"notes"`
}

// ChildCare tracks minors checked into an event's rooms.
// Lifecycle: none -> checked-in -> checked-out (terminal).
type ChildCare struct {
	db      *gorm.DB
	catalog Catalog
	ledger  *Ledger
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewChildCare(db *gorm.DB, catalog Catalog, ledger *Ledger, pub events.Publisher, m *metrics.Metrics, log *slog.Logger) *ChildCare {
	return &ChildCare{db: db, catalog: catalog, ledger: ledger, pub: pub, metrics: m, log: log, now: time.Now}
}

// PickRoom applies the room rule: zero rooms rejects, one room is taken
// automatically, several rooms need an explicit choice from the list.
func PickRoom(rooms []models.EventRoom, roomID string) (models.EventRoom, error) {
	roomID = strings.TrimSpace(roomID)
	switch {
	case len(rooms) == 0:
		return models.EventRoom{}, sentinel.ErrNoRoomAvailable
	case roomID == "" && len(rooms) == 1:
		return rooms[0], nil
	case roomID == "":
		return models.EventRoom{}, sentinel.ErrRoomRequired
	}
	for _, r := range rooms {
		if r.RoomID == roomID {
			return r, nil
		}
	}
	return models.EventRoom{}, fmt.Errorf("%w: %s", sentinel.ErrInvalidRoom, roomID)
}

func (c *ChildCare) CheckIn(ctx context.Context, req CheckInRequest) (*models.ChildCareEntry, error) {
	req.ChildName = strings.TrimSpace(req.ChildName)
	if req.EventID == "" || req.ParentID == "" {
		return nil, fmt.Errorf("%w: event and parent are required", sentinel.ErrValidation)
	}
	if req.ChildName == "" {
		return nil, fmt.Errorf("%w: child name is required", sentinel.ErrValidation)
	}
	if req.Age < 0 {
		return nil, fmt.Errorf("%w: age must not be negative", sentinel.ErrValidation)
	}

	ok, err := c.ledger.Exists(ctx, req.EventID, req.ParentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sentinel.ErrNotRegistered
	}

	rooms, err := c.catalog.ListRoomsForEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	room, err := PickRoom(rooms, req.RoomID)
	if err != nil {
		return nil, err
	}

	entry := &models.ChildCareEntry{
		ID:          uuid.NewString(),
		PersonID:    req.ParentID,
		EventID:     req.EventID,
		ChildName:   req.ChildName,
		Age:         req.Age,
		Allergies:   strings.TrimSpace(req.Allergies),
		RoomID:      room.RoomID,
		RoomName:    room.RoomName,
		Notes:       strings.TrimSpace(req.Notes),
		CheckInTime: c.now(),
		Status:      models.ChildCheckedIn,
	}
	if err := models.Validate(entry); err != nil {
		return nil, err
	}
	if err := c.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	c.metrics.ChildCareTransition(models.ChildCheckedIn)
	c.log.Info("child checked in", "event_id", req.EventID, "parent_id", req.ParentID, "room_id", room.RoomID)
	events.Emit(c.pub, events.KindChildCare, req.EventID, entry.ID, "created")
	return entry, nil
}

// CheckOut is one-way; a checked-out entry is never reopened.
func (c *ChildCare) CheckOut(ctx context.Context, entryID string) (*models.ChildCareEntry, error) {
	var entry models.ChildCareEntry
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", entryID).First(&entry).Error; err != nil {
			return lookupErr(err, fmt.Errorf("child-care entry %s: %w", entryID, sentinel.ErrNotFound))
		}
		if err := models.Validate(&entry); err != nil {
			return err
		}
		if entry.Status != models.ChildCheckedIn {
			return fmt.Errorf("%w: entry is %s", sentinel.ErrInvalidState, entry.Status)
		}
		now := c.now()
		res := tx.Model(&models.ChildCareEntry{}).
			Where("id = ? AND status = ?", entryID, models.ChildCheckedIn).
			Updates(map[string]any{"status": models.ChildCheckedOut, "check_out_time": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: entry already checked out", sentinel.ErrInvalidState)
		}
		entry.Status = models.ChildCheckedOut
		entry.CheckOutTime = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.ChildCareTransition(models.ChildCheckedOut)
	c.log.Info("child checked out", "entry_id", entryID, "event_id", entry.EventID)
	events.Emit(c.pub, events.KindChildCare, entry.EventID, entry.ID, "updated")
	return &entry, nil
}

// Delete removes the entry whatever its state.
func (c *ChildCare) Delete(ctx context.Context, entryID string) error {
	var entry models.ChildCareEntry
	if err := c.db.WithContext(ctx).Where("id = ?", entryID).First(&entry).Error; err != nil {
		return lookupErr(err, fmt.Errorf("child-care entry %s: %w", entryID, sentinel.ErrNotFound))
	}
	res := c.db.WithContext(ctx).Where("id = ?", entryID).Delete(&models.ChildCareEntry{})
	if res.Error != nil {
		return fmt.Errorf("store: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("child-care entry %s: %w", entryID, sentinel.ErrNotFound)
	}
	c.metrics.ChildCareTransition("deleted")
	events.Emit(c.pub, events.KindChildCare, entry.EventID, entryID, "deleted")
	return nil
}

func (c *ChildCare) ListByEvent(ctx context.Context, eventID string) ([]models.ChildCareEntry, error) {
	var out []models.ChildCareEntry
	if err := c.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("check_in_time desc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return out, models.ValidateAll(out)
}

func (c *ChildCare) ListByParent(ctx context.Context, personID string) ([]models.ChildCareEntry, error) {
	var out []models.ChildCareEntry
	if err := c.db.WithContext(ctx).
		Where("person_id = ?", personID).
		Order("check_in_time desc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return out, models.ValidateAll(out)
}
