package services

import (
	"context"
	"time"

	"github.com/lojf/attendance/internal/models"
)

// Snapshot is one consistent-enough read of an event's three logs. The lists
// come from separate queries; there is no transaction across them.
type Snapshot struct {
	EventID       string                    `json:"eventId"`
	RefreshedAt   time.Time                 `json:"refreshedAt"`
	Registrations []models.Registration     `json:"registrations"`
	ChildCare     []models.ChildCareEntry   `json:"childCare"`
	Courses       []models.CourseCompletion `json:"courses"`
	Counts        SnapshotCounts            `json:"counts"`
}

type SnapshotCounts struct {
	Registrations   int `json:"registrations"`
	ChildrenPresent int `json:"childrenPresent"`
	ChildrenTotal   int `json:"childrenTotal"`
	CoursesStarted  int `json:"coursesStarted"`
	CoursesDone     int `json:"coursesCompleted"`
}

// LogView projects the ledger, child-care and course records of one event.
type LogView struct {
	ledger    *Ledger
	childCare *ChildCare
	courses   *Courses
	now       func() time.Time
}

func NewLogView(ledger *Ledger, childCare *ChildCare, courses *Courses) *LogView {
	return &LogView{ledger: ledger, childCare: childCare, courses: courses, now: time.Now}
}

// RefreshAll re-runs all three queries. Each list keeps its own order:
// registrations by registeredAt, child care by check-in, courses by start,
// all newest first.
func (v *LogView) RefreshAll(ctx context.Context, eventID string) (*Snapshot, error) {
	regs, err := v.ledger.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	kids, err := v.childCare.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	courses, err := v.courses.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		EventID:       eventID,
		RefreshedAt:   v.now(),
		Registrations: nonNil(regs),
		ChildCare:     nonNil(kids),
		Courses:       nonNil(courses),
	}
	s.Counts.Registrations = len(regs)
	s.Counts.ChildrenTotal = len(kids)
	for _, k := range kids {
		if k.Status == models.ChildCheckedIn {
			s.Counts.ChildrenPresent++
		}
	}
	s.Counts.CoursesStarted = len(courses)
	for _, c := range courses {
		if c.Status == models.CourseCompleted {
			s.Counts.CoursesDone++
		}
	}
	return s, nil
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
