package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/sentinel"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, Percentage(0, 0))
	assert.Equal(t, 0, Percentage(0, 3))
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 100, Percentage(3, 3))
	// rounds to 100 but one slot is still open
	assert.Equal(t, 99, Percentage(199, 200))

	for total := 1; total <= 250; total++ {
		for done := 0; done <= total; done++ {
			p := Percentage(done, total)
			require.GreaterOrEqual(t, p, 0)
			require.LessOrEqual(t, p, 100)
			require.Equal(t, done == total, p == 100, "done=%d total=%d", done, total)
		}
	}
}

func TestBuildSlotsPrefersCompletedPerOrder(t *testing.T) {
	evs := []models.Event{
		{ID: "a1", Order: 1, Required: true},
		{ID: "a2", Order: 1},
		{ID: "b", Order: 2, Required: true},
		{ID: "free1"},
		{ID: "free2"},
	}
	status := map[string]string{
		"a1":    models.CourseInProgress,
		"a2":    models.CourseCompleted,
		"free2": models.CourseInProgress,
	}

	slots := BuildSlots(evs, status)
	require.Len(t, slots, 4)

	assert.Equal(t, 1, slots[0].Order)
	assert.Equal(t, "a2", slots[0].EventID)
	assert.Equal(t, models.CourseCompleted, slots[0].Status)
	assert.True(t, slots[0].Required, "slot keeps the required flag of any member")

	assert.Equal(t, "b", slots[1].EventID)
	assert.Equal(t, "not-started", slots[1].Status)

	// unordered events count once each, after the ordered ones
	assert.Equal(t, "free1", slots[2].EventID)
	assert.Equal(t, "free2", slots[3].EventID)
	assert.Equal(t, models.CourseInProgress, slots[3].Status)
}

// courseFixture seeds required subcategory S1 with events at orders 1, 2, 3.
func courseFixture(t *testing.T) *testEnv {
	t.Helper()
	env := newEnv(t)
	env.courses.now = clock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	env.person(t, "P1", "Ana", "", "")
	env.subcategory(t, "S1", true)
	for i, id := range []string{"S1-E1", "S1-E2", "S1-E3"} {
		env.event(t, models.Event{ID: id, CategoryID: "cat-1", SubcategoryID: "S1", Required: true, Order: i + 1})
	}
	return env
}

func finish(t *testing.T, env *testEnv, personID, eventID string) (*models.CourseCompletion, *RecomputeResult) {
	t.Helper()
	ctx := context.Background()
	cc, _, err := env.courses.Start(ctx, StartRequest{PersonID: personID, EventID: eventID, InstructorName: "Pak Joko"})
	require.NoError(t, err)
	done, rr, err := env.courses.Complete(ctx, cc.ID)
	require.NoError(t, err)
	return done, rr
}

func logCount(t *testing.T, env *testEnv, personID, subcategoryID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.Model(&models.CompletionLog{}).
		Where("person_id = ? AND subcategory_id = ?", personID, subcategoryID).Count(&n).Error)
	return n
}

func TestStartCreatesAssignmentAndIsIdempotent(t *testing.T) {
	env := courseFixture(t)
	ctx := context.Background()

	cc, created, err := env.courses.Start(ctx, StartRequest{PersonID: "P1", EventID: "S1-E1", StartedBy: "Desk"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.CourseInProgress, cc.Status)
	assert.Equal(t, "S1", cc.SubcategoryID)
	assert.Equal(t, "Event S1-E1", cc.EventName)

	again, created, err := env.courses.Start(ctx, StartRequest{PersonID: "P1", EventID: "S1-E1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cc.ID, again.ID)

	p, err := env.courses.Progress(ctx, "P1", "S1")
	require.NoError(t, err)
	assert.True(t, p.IsAssigned)
	assert.False(t, p.IsCompleted)

	var a models.CourseAssignment
	require.NoError(t, env.db.First(&a, "person_id = ? AND subcategory_id = ?", "P1", "S1").Error)
	assert.Equal(t, "Desk", a.AssignedBy)
	assert.Equal(t, "cat-1", a.CategoryID)

	_, _, err = env.courses.Start(ctx, StartRequest{PersonID: "P1", EventID: "nope"})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPartialRequiredSetIsNotComplete(t *testing.T) {
	env := courseFixture(t)
	finish(t, env, "P1", "S1-E1")
	_, rr := finish(t, env, "P1", "S1-E2")
	assert.False(t, rr.Appended)

	p, err := env.courses.Progress(context.Background(), "P1", "S1")
	require.NoError(t, err)
	assert.False(t, p.IsCompleted)
	assert.Equal(t, 67, p.CompletionPercentage)
	assert.Equal(t, 2, p.CompletedSlots)
	assert.Equal(t, 3, p.TotalSlots)
	assert.EqualValues(t, 0, logCount(t, env, "P1", "S1"))
}

func TestCompletingLastRequiredAppendsOnce(t *testing.T) {
	env := courseFixture(t)
	ctx := context.Background()
	finish(t, env, "P1", "S1-E1")
	finish(t, env, "P1", "S1-E2")
	last, rr := finish(t, env, "P1", "S1-E3")
	assert.True(t, rr.Appended)
	assert.EqualValues(t, 1, logCount(t, env, "P1", "S1"))

	for i := 0; i < 3; i++ {
		rr, err := env.courses.Recompute(ctx, "P1", "S1")
		require.NoError(t, err)
		assert.False(t, rr.Appended)
		assert.False(t, rr.Removed)
	}
	// completing twice is a no-op
	_, rr, err := env.courses.Complete(ctx, last.ID)
	require.NoError(t, err)
	assert.False(t, rr.Appended)
	assert.EqualValues(t, 1, logCount(t, env, "P1", "S1"))

	p, err := env.courses.Progress(ctx, "P1", "S1")
	require.NoError(t, err)
	assert.True(t, p.IsCompleted)
	assert.Equal(t, 100, p.CompletionPercentage)
	require.NotNil(t, p.CompletedAt)
}

func TestRemovingCompletionRollsBackLog(t *testing.T) {
	env := courseFixture(t)
	ctx := context.Background()
	finish(t, env, "P1", "S1-E1")
	finish(t, env, "P1", "S1-E2")
	last, _ := finish(t, env, "P1", "S1-E3")
	require.EqualValues(t, 1, logCount(t, env, "P1", "S1"))

	rr, err := env.courses.Remove(ctx, last.ID)
	require.NoError(t, err)
	assert.True(t, rr.Removed)
	assert.EqualValues(t, 0, logCount(t, env, "P1", "S1"))

	p, err := env.courses.Progress(ctx, "P1", "S1")
	require.NoError(t, err)
	assert.False(t, p.IsCompleted)
	assert.Equal(t, 67, p.CompletionPercentage)

	_, err = env.courses.Remove(ctx, last.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCompleteNeverRollsBackEarnedLog(t *testing.T) {
	env := courseFixture(t)
	ctx := context.Background()
	finish(t, env, "P1", "S1-E1")
	finish(t, env, "P1", "S1-E2")
	last, _ := finish(t, env, "P1", "S1-E3")
	require.EqualValues(t, 1, logCount(t, env, "P1", "S1"))

	// the catalog grows after the set was earned
	env.event(t, models.Event{ID: "S1-E4", CategoryID: "cat-1", SubcategoryID: "S1", Required: true, Order: 4})
	env.event(t, models.Event{ID: "S1-X", CategoryID: "cat-1", SubcategoryID: "S1", Order: 5})
	_, rr := finish(t, env, "P1", "S1-X")
	assert.False(t, rr.Removed)
	assert.EqualValues(t, 1, logCount(t, env, "P1", "S1"))

	rr, err := env.courses.Recompute(ctx, "P1", "S1")
	require.NoError(t, err)
	assert.False(t, rr.Removed)

	// the subcategory stops being required
	require.NoError(t, env.db.Model(&models.Subcategory{}).Where("id = ?", "S1").Update("required", false).Error)
	_, rr, err = env.courses.Complete(ctx, last.ID)
	require.NoError(t, err)
	assert.False(t, rr.Removed)
	assert.EqualValues(t, 1, logCount(t, env, "P1", "S1"))

	// removal is still the one path that rolls back
	rr, err = env.courses.Remove(ctx, last.ID)
	require.NoError(t, err)
	assert.True(t, rr.Removed)
	assert.EqualValues(t, 0, logCount(t, env, "P1", "S1"))
}

func TestNonRequiredSubcategoryNeverLogs(t *testing.T) {
	env := newEnv(t)
	env.person(t, "P1", "Ana", "", "")
	env.subcategory(t, "S2", false)
	env.event(t, models.Event{ID: "S2-E1", SubcategoryID: "S2", Required: true, Order: 1})

	_, rr := finish(t, env, "P1", "S2-E1")
	assert.False(t, rr.Appended)

	p, err := env.courses.Progress(context.Background(), "P1", "S2")
	require.NoError(t, err)
	assert.Equal(t, 100, p.CompletionPercentage)
	assert.False(t, p.IsCompleted)
}

func TestRequiredSubcategoryWithoutRequiredEventsNeverLogs(t *testing.T) {
	env := newEnv(t)
	env.person(t, "P1", "Ana", "", "")
	env.subcategory(t, "S3", true)
	env.event(t, models.Event{ID: "S3-E1", SubcategoryID: "S3", Order: 1})

	_, rr := finish(t, env, "P1", "S3-E1")
	assert.False(t, rr.Appended)
	assert.EqualValues(t, 0, logCount(t, env, "P1", "S3"))
}

func TestAssignAndPersonProgress(t *testing.T) {
	env := courseFixture(t)
	ctx := context.Background()
	env.subcategory(t, "S4", false)

	a, err := env.courses.Assign(ctx, "P1", "S4", "Desk")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentActive, a.Status)
	again, err := env.courses.Assign(ctx, "P1", "S4", "Other")
	require.NoError(t, err)
	assert.Equal(t, "Desk", again.AssignedBy, "first assignment stands")

	_, err = env.courses.Assign(ctx, "P1", "missing", "Desk")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	finish(t, env, "P1", "S1-E1")

	all, err := env.courses.PersonProgress(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "S1", all[0].SubcategoryID)
	assert.Equal(t, 33, all[0].CompletionPercentage)
	assert.Equal(t, "S4", all[1].SubcategoryID)
	assert.True(t, all[1].IsAssigned)
	assert.Equal(t, 0, all[1].TotalSlots)
}

func TestAssignAnnouncesOnSubcategoryEvents(t *testing.T) {
	env := courseFixture(t)
	ctx := context.Background()
	ch, cancel := env.hub.Subscribe("S1-E2")
	defer cancel()

	_, err := env.courses.Assign(ctx, "P1", "S1", "Desk")
	require.NoError(t, err)
	_, err = env.courses.Assign(ctx, "P1", "S1", "Desk")
	require.NoError(t, err)

	require.Len(t, ch, 1)
	c := <-ch
	assert.Equal(t, events.KindCourse, c.Kind)
	assert.Equal(t, "S1-E2", c.EventID)
	assert.Equal(t, "created", c.Action)
}

func TestCourseListByEvent(t *testing.T) {
	env := courseFixture(t)
	env.person(t, "P2", "Budi", "", "")
	ctx := context.Background()

	_, _, err := env.courses.Start(ctx, StartRequest{PersonID: "P1", EventID: "S1-E1"})
	require.NoError(t, err)
	_, _, err = env.courses.Start(ctx, StartRequest{PersonID: "P2", EventID: "S1-E1"})
	require.NoError(t, err)

	list, err := env.courses.ListByEvent(ctx, "S1-E1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "P2", list[0].PersonID)
}
