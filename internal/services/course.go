package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/metrics"
	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/sentinel"
)

type StartRequest struct {
	PersonID       string `json:"personId"`
	EventID        string `json:"eventId"`
	InstructorName string `json:"instructorName"`
	Notes          string `json:"notes"`
	StartedBy      string `json:"-"`
}

// Slot is one order position of a subcategory. Events sharing an order count
// once; unordered events get a slot each.
type Slot struct {
	Order    int    `json:"order"`
	EventID  string `json:"eventId"`
	Title    string `json:"title"`
	Required bool   `json:"required"`
	Status   string `json:"status"` // completed | in-progress | not-started
}

type SubcategoryProgress struct {
	PersonID             string     `json:"personId"`
	SubcategoryID        string     `json:"subcategoryId"`
	Name                 string     `json:"name"`
	Required             bool       `json:"required"`
	IsAssigned           bool       `json:"isAssigned"`
	IsCompleted          bool       `json:"isCompleted"`
	CompletionPercentage int        `json:"completionPercentage"`
	CompletedSlots       int        `json:"completedSlots"`
	TotalSlots           int        `json:"totalSlots"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	Slots                []Slot     `json:"slots"`
}

// RecomputeResult reports what a recompute changed.
type RecomputeResult struct {
	Appended bool `json:"appended"`
	Removed  bool `json:"removed"`
}

// Courses merges per-event completions into subcategory and required-set state.
type Courses struct {
	db      *gorm.DB
	catalog Catalog
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewCourses(db *gorm.DB, catalog Catalog, pub events.Publisher, m *metrics.Metrics, log *slog.Logger) *Courses {
	return &Courses{db: db, catalog: catalog, pub: pub, metrics: m, log: log, now: time.Now}
}

// Assign records that the person is enrolled in the subcategory. Repeat calls
// return the original assignment. A new assignment is announced on every
// event of the subcategory.
func (c *Courses) Assign(ctx context.Context, personID, subcategoryID, assignedBy string) (*models.CourseAssignment, error) {
	sc, err := c.catalog.GetSubcategory(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}
	a, created, err := c.ensureAssignment(c.db.WithContext(ctx), personID, sc.CategoryID, sc.ID, assignedBy)
	if err != nil || !created {
		return a, err
	}
	c.log.Info("course assigned", "person_id", personID, "subcategory_id", sc.ID, "by", assignedBy)
	evs, err := c.catalog.GetEventsBySubcategory(ctx, sc.ID)
	if err != nil {
		c.log.Warn("assign: list subcategory events", "subcategory_id", sc.ID, "err", err)
		return a, nil
	}
	for _, ev := range evs {
		events.Emit(c.pub, events.KindCourse, ev.ID, personID+"/"+sc.ID, "created")
	}
	return a, nil
}

func (c *Courses) ensureAssignment(tx *gorm.DB, personID, categoryID, subcategoryID, by string) (*models.CourseAssignment, bool, error) {
	if personID == "" || subcategoryID == "" {
		return nil, false, fmt.Errorf("%w: person and subcategory are required", sentinel.ErrValidation)
	}
	a := models.CourseAssignment{
		PersonID:      personID,
		SubcategoryID: subcategoryID,
		CategoryID:    categoryID,
		AssignedAt:    c.now(),
		AssignedBy:    by,
		Status:        models.AssignmentActive,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&a)
	if res.Error != nil {
		return nil, false, fmt.Errorf("store: %w", res.Error)
	}
	var stored models.CourseAssignment
	if err := tx.Where("person_id = ? AND subcategory_id = ?", personID, subcategoryID).First(&stored).Error; err != nil {
		return nil, false, fmt.Errorf("store: %w", err)
	}
	return &stored, res.RowsAffected > 0, models.Validate(&stored)
}

// Start opens an in-progress completion for (person, event), returning the
// existing one when present. It also assigns the event's subcategory so the
// assigned state survives a skipped assignment step.
func (c *Courses) Start(ctx context.Context, req StartRequest) (*models.CourseCompletion, bool, error) {
	if strings.TrimSpace(req.PersonID) == "" || strings.TrimSpace(req.EventID) == "" {
		return nil, false, fmt.Errorf("%w: person and event are required", sentinel.ErrValidation)
	}
	ev, err := c.catalog.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, false, err
	}

	var (
		out     models.CourseCompletion
		created bool
	)
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("person_id = ? AND event_id = ?", req.PersonID, req.EventID).First(&out).Error
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			out = models.CourseCompletion{
				ID:             uuid.NewString(),
				PersonID:       req.PersonID,
				EventID:        ev.ID,
				EventName:      ev.Title,
				InstructorName: strings.TrimSpace(req.InstructorName),
				Notes:          strings.TrimSpace(req.Notes),
				Status:         models.CourseInProgress,
				StartedAt:      c.now(),
				CategoryID:     ev.CategoryID,
				SubcategoryID:  ev.SubcategoryID,
			}
			if err := tx.Create(&out).Error; err != nil {
				return err
			}
			created = true
		default:
			return err
		}

		if ev.SubcategoryID != "" {
			if _, _, err := c.ensureAssignment(tx, req.PersonID, ev.CategoryID, ev.SubcategoryID, req.StartedBy); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// concurrent start of the same course; the other write stands
		if ferr := c.db.WithContext(ctx).Where("person_id = ? AND event_id = ?", req.PersonID, req.EventID).First(&out).Error; ferr != nil {
			return nil, false, fmt.Errorf("start course: %w", sentinel.ErrWriteConflict)
		}
		return &out, false, models.Validate(&out)
	}
	if err != nil {
		return nil, false, fmt.Errorf("start course: %w", err)
	}

	if created {
		c.log.Info("course started", "person_id", req.PersonID, "event_id", req.EventID, "subcategory_id", ev.SubcategoryID)
		events.Emit(c.pub, events.KindCourse, req.EventID, out.ID, "created")
	}
	return &out, created, models.Validate(&out)
}

// Complete moves a completion forward to completed and re-evaluates its
// subcategory. Completing twice is a no-op.
func (c *Courses) Complete(ctx context.Context, completionID string) (*models.CourseCompletion, *RecomputeResult, error) {
	cc, err := c.get(ctx, completionID)
	if err != nil {
		return nil, nil, err
	}
	if cc.Status != models.CourseCompleted {
		now := c.now()
		res := c.db.WithContext(ctx).Model(&models.CourseCompletion{}).
			Where("id = ? AND status = ?", completionID, models.CourseInProgress).
			Updates(map[string]any{"status": models.CourseCompleted, "completed_at": now})
		if res.Error != nil {
			return nil, nil, fmt.Errorf("store: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// completed (or removed) by someone else in between
			if cc, err = c.get(ctx, completionID); err != nil {
				return nil, nil, err
			}
		} else {
			cc.Status = models.CourseCompleted
			cc.CompletedAt = &now
			c.log.Info("course completed", "person_id", cc.PersonID, "event_id", cc.EventID)
			events.Emit(c.pub, events.KindCourse, cc.EventID, cc.ID, "updated")
		}
	}

	rr := &RecomputeResult{}
	if cc.SubcategoryID != "" {
		if rr, err = c.reconcile(ctx, cc.PersonID, cc.SubcategoryID, false); err != nil {
			return cc, nil, err
		}
	}
	return cc, rr, nil
}

// Remove deletes a completion and rolls back a CompletionLog that no longer
// holds without it.
func (c *Courses) Remove(ctx context.Context, completionID string) (*RecomputeResult, error) {
	cc, err := c.get(ctx, completionID)
	if err != nil {
		return nil, err
	}
	res := c.db.WithContext(ctx).Where("id = ?", completionID).Delete(&models.CourseCompletion{})
	if res.Error != nil {
		return nil, fmt.Errorf("store: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("course completion %s: %w", completionID, sentinel.ErrNotFound)
	}
	events.Emit(c.pub, events.KindCourse, cc.EventID, cc.ID, "deleted")

	if cc.SubcategoryID == "" {
		return &RecomputeResult{}, nil
	}
	return c.reconcile(ctx, cc.PersonID, cc.SubcategoryID, true)
}

func (c *Courses) get(ctx context.Context, completionID string) (*models.CourseCompletion, error) {
	var cc models.CourseCompletion
	if err := c.db.WithContext(ctx).Where("id = ?", completionID).First(&cc).Error; err != nil {
		return nil, lookupErr(err, fmt.Errorf("course completion %s: %w", completionID, sentinel.ErrNotFound))
	}
	return &cc, models.Validate(&cc)
}

// Recompute appends the CompletionLog of (person, subcategory) once every
// required event is completed. An existing log is never touched here; only
// Remove rolls one back. Running it again with the same inputs changes nothing.
func (c *Courses) Recompute(ctx context.Context, personID, subcategoryID string) (*RecomputeResult, error) {
	return c.reconcile(ctx, personID, subcategoryID, false)
}

// reconcile derives the required-set state and appends the log when it holds.
// With rollback set it also deletes a log that no longer holds.
func (c *Courses) reconcile(ctx context.Context, personID, subcategoryID string, rollback bool) (*RecomputeResult, error) {
	sc, err := c.catalog.GetSubcategory(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}
	evs, err := c.catalog.GetEventsBySubcategory(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}
	completed, err := c.completedEventIDs(ctx, personID, evs)
	if err != nil {
		return nil, err
	}

	satisfied := false
	if sc.Required {
		required := 0
		satisfied = true
		for _, ev := range evs {
			if !ev.Required {
				continue
			}
			required++
			if !completed[ev.ID] {
				satisfied = false
				break
			}
		}
		satisfied = satisfied && required > 0
	}

	var logs []models.CompletionLog
	if err := c.db.WithContext(ctx).
		Where("person_id = ? AND subcategory_id = ?", personID, subcategoryID).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	out := &RecomputeResult{}
	switch {
	case satisfied && len(logs) == 0:
		entry := models.CompletionLog{
			ID:            uuid.NewString(),
			PersonID:      personID,
			SubcategoryID: subcategoryID,
			CompletedAt:   c.now(),
			Note:          "all required events completed: " + sc.Name,
			Status:        models.CourseCompleted,
		}
		err := c.db.WithContext(ctx).Create(&entry).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// appended concurrently; one log per (person, subcategory) either way
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		out.Appended = true
		c.metrics.CompletionLogAppended()
		c.log.Info("subcategory completed", "person_id", personID, "subcategory_id", subcategoryID)
	case rollback && !satisfied && len(logs) > 0:
		if err := c.db.WithContext(ctx).
			Where("person_id = ? AND subcategory_id = ?", personID, subcategoryID).
			Delete(&models.CompletionLog{}).Error; err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		out.Removed = true
		c.log.Info("subcategory completion rolled back", "person_id", personID, "subcategory_id", subcategoryID)
	}
	return out, nil
}

func (c *Courses) completedEventIDs(ctx context.Context, personID string, evs []models.Event) (map[string]bool, error) {
	status, err := c.statusByEvent(ctx, personID, evs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(status))
	for id, s := range status {
		if s == models.CourseCompleted {
			out[id] = true
		}
	}
	return out, nil
}

func (c *Courses) statusByEvent(ctx context.Context, personID string, evs []models.Event) (map[string]string, error) {
	ids := make([]string, 0, len(evs))
	for _, ev := range evs {
		ids = append(ids, ev.ID)
	}
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var ccs []models.CourseCompletion
	if err := c.db.WithContext(ctx).
		Where("person_id = ? AND event_id IN ?", personID, ids).
		Find(&ccs).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := models.ValidateAll(ccs); err != nil {
		return nil, err
	}
	for _, cc := range ccs {
		out[cc.EventID] = cc.Status
	}
	return out, nil
}

// Progress computes subcategory state for a person on demand.
func (c *Courses) Progress(ctx context.Context, personID, subcategoryID string) (*SubcategoryProgress, error) {
	sc, err := c.catalog.GetSubcategory(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}
	evs, err := c.catalog.GetEventsBySubcategory(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}
	status, err := c.statusByEvent(ctx, personID, evs)
	if err != nil {
		return nil, err
	}

	p := &SubcategoryProgress{
		PersonID:      personID,
		SubcategoryID: sc.ID,
		Name:          sc.Name,
		Required:      sc.Required,
		Slots:         BuildSlots(evs, status),
	}
	p.TotalSlots = len(p.Slots)
	for _, s := range p.Slots {
		if s.Status == models.CourseCompleted {
			p.CompletedSlots++
		}
	}
	p.CompletionPercentage = Percentage(p.CompletedSlots, p.TotalSlots)

	var n int64
	if err := c.db.WithContext(ctx).Model(&models.CourseAssignment{}).
		Where("person_id = ? AND subcategory_id = ?", personID, subcategoryID).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	p.IsAssigned = n > 0

	var logs []models.CompletionLog
	if err := c.db.WithContext(ctx).
		Where("person_id = ? AND subcategory_id = ?", personID, subcategoryID).
		Limit(1).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if len(logs) > 0 {
		p.IsCompleted = true
		at := logs[0].CompletedAt
		p.CompletedAt = &at
	}
	return p, nil
}

// PersonProgress reports every subcategory the person is assigned to, has a
// completion in, or has completed.
func (c *Courses) PersonProgress(ctx context.Context, personID string) ([]SubcategoryProgress, error) {
	ids := map[string]bool{}
	collect := func(model any) error {
		var subs []string
		if err := c.db.WithContext(ctx).Model(model).
			Where("person_id = ? AND subcategory_id <> ''", personID).
			Distinct().Pluck("subcategory_id", &subs).Error; err != nil {
			return fmt.Errorf("store: %w", err)
		}
		for _, s := range subs {
			ids[s] = true
		}
		return nil
	}
	for _, m := range []any{&models.CourseAssignment{}, &models.CourseCompletion{}, &models.CompletionLog{}} {
		if err := collect(m); err != nil {
			return nil, err
		}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := make([]SubcategoryProgress, 0, len(sorted))
	for _, id := range sorted {
		p, err := c.Progress(ctx, personID, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			c.log.Warn("progress references missing subcategory", "person_id", personID, "subcategory_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// ListByEvent returns the event's completions, most recently started first.
func (c *Courses) ListByEvent(ctx context.Context, eventID string) ([]models.CourseCompletion, error) {
	var out []models.CourseCompletion
	if err := c.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("started_at desc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return out, models.ValidateAll(out)
}

// BuildSlots groups events by order, keeping the best event per slot:
// completed beats in-progress beats not-started.
func BuildSlots(evs []models.Event, status map[string]string) []Slot {
	rank := func(s string) int {
		switch s {
		case models.CourseCompleted:
			return 2
		case models.CourseInProgress:
			return 1
		}
		return 0
	}

	byKey := map[string]int{}
	var slots []Slot
	for _, ev := range evs {
		key := "event:" + ev.ID
		if ev.Order > 0 {
			key = "order:" + strconv.Itoa(ev.Order)
		}
		st := status[ev.ID]
		if st == "" {
			st = "not-started"
		}
		cand := Slot{Order: ev.Order, EventID: ev.ID, Title: ev.Title, Required: ev.Required, Status: st}

		i, ok := byKey[key]
		if !ok {
			byKey[key] = len(slots)
			slots = append(slots, cand)
			continue
		}
		required := slots[i].Required || ev.Required
		if rank(st) > rank(slots[i].Status) {
			slots[i] = cand
		}
		slots[i].Required = required
	}

	sort.SliceStable(slots, func(i, j int) bool {
		oi, oj := slots[i].Order, slots[j].Order
		if (oi == 0) != (oj == 0) {
			return oi != 0 // ordered slots first
		}
		return oi < oj
	})
	return slots
}

// Percentage is round(100*done/total) kept strictly below 100 until every
// slot is done, and 0 for an empty subcategory.
func Percentage(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	p := int(math.Round(100 * float64(done) / float64(total)))
	if p >= 100 {
		p = 99
	}
	return p
}
