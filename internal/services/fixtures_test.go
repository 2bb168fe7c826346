package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lojf/attendance/internal/db/dbtest"
	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/metrics"
	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/operator"
)

// testEnv is a migrated store with every service wired over it.
type testEnv struct {
	db        *gorm.DB
	hub       *events.Hub
	dir       *GormDirectory
	catalog   *GormCatalog
	ledger    *Ledger
	childCare *ChildCare
	courses   *Courses
	logView   *LogView
	op        operator.Operator
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := dbtest.Open(t)
	log := dbtest.Logger()
	m := metrics.Nop()
	hub := events.NewHub()

	dir := NewGormDirectory(gdb, Phones{CountryCode: "62"})
	catalog := NewGormCatalog(gdb)
	ledger := NewLedger(gdb, catalog, dir, hub, m, log)
	childCare := NewChildCare(gdb, catalog, ledger, hub, m, log)
	courses := NewCourses(gdb, catalog, hub, m, log)
	return &testEnv{
		db:        gdb,
		hub:       hub,
		dir:       dir,
		catalog:   catalog,
		ledger:    ledger,
		childCare: childCare,
		courses:   courses,
		logView:   NewLogView(ledger, childCare, courses),
		op:        operator.Operator{ID: "op-1", Name: "Desk", ChurchID: "church-1", CanEdit: true},
	}
}

func (e *testEnv) person(t *testing.T, id, first, phone, email string) models.Person {
	t.Helper()
	p := models.Person{ID: id, ChurchID: "church-1", FirstName: first, LastName: "Test", Phone: phone, Email: email}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e *testEnv) visitor(t *testing.T, id, first, phone, email string) models.Visitor {
	t.Helper()
	v := models.Visitor{ID: id, ChurchID: "church-1", FirstName: first, LastName: "Guest", Phone: phone, Email: email}
	require.NoError(t, e.db.Create(&v).Error)
	return v
}

func (e *testEnv) event(t *testing.T, ev models.Event) models.Event {
	t.Helper()
	if ev.Title == "" {
		ev.Title = "Event " + ev.ID
	}
	if ev.ChurchID == "" {
		ev.ChurchID = "church-1"
	}
	if ev.StartAt.IsZero() {
		ev.StartAt = time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC)
	}
	require.NoError(t, e.db.Create(&ev).Error)
	return ev
}

func (e *testEnv) subcategory(t *testing.T, id string, required bool) models.Subcategory {
	t.Helper()
	sc := models.Subcategory{ID: id, CategoryID: "cat-1", Name: "Stage " + id, Required: required}
	require.NoError(t, e.db.Create(&sc).Error)
	return sc
}

// clock returns a func that advances one minute per call.
func clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}
