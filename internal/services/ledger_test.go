package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	env *testEnv
	ctx context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.env = newEnv(s.T())
	s.env.ledger.now = clock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	s.ctx = context.Background()
	s.env.event(s.T(), models.Event{ID: "E1"})
	s.env.event(s.T(), models.Event{ID: "E2"})
	s.env.person(s.T(), "P1", "Ana", "", "")
	s.env.person(s.T(), "P2", "Budi", "", "")
}

func (s *LedgerSuite) count(eventID, personID string) int64 {
	var n int64
	s.Require().NoError(s.env.db.Model(&models.Registration{}).
		Where("event_id = ? AND person_id = ?", eventID, personID).Count(&n).Error)
	return n
}

func (s *LedgerSuite) TestRegisterTwiceKeepsOneRow() {
	first, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	s.Equal(RegisterCreated, first.Status)
	s.Equal("church-1", first.Registration.ChurchID)
	s.Equal(models.RegStatusRegistered, first.Registration.Status)

	second, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceManualCheckin)
	s.Require().NoError(err)
	s.Equal(RegisterAlreadyExists, second.Status)
	s.Equal(first.Registration.ID, second.Registration.ID)
	s.Equal(models.SourceQRScan, second.Registration.Source, "the stored row is returned untouched")
	s.EqualValues(1, s.count("E1", "P1"))
}

func (s *LedgerSuite) TestRegisterConcurrentSamePair() {
	const n = 8
	var wg sync.WaitGroup
	results := make(chan RegisterStatus, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
			if err != nil {
				s.T().Errorf("register: %v", err)
				return
			}
			results <- res.Status
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for st := range results {
		if st == RegisterCreated {
			created++
		}
	}
	s.Equal(1, created)
	s.EqualValues(1, s.count("E1", "P1"))
}

func (s *LedgerSuite) TestRegisterSamePersonDifferentEvents() {
	_, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	res, err := s.env.ledger.Register(s.ctx, s.env.op, "E2", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	s.Equal(RegisterCreated, res.Status)
}

func (s *LedgerSuite) TestRegisterRejects() {
	_, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", "kiosk")
	s.ErrorIs(err, sentinel.ErrValidation)

	_, err = s.env.ledger.Register(s.ctx, s.env.op, "", "P1", models.SourceQRScan)
	s.ErrorIs(err, sentinel.ErrValidation)

	_, err = s.env.ledger.Register(s.ctx, s.env.op, "E9", "P1", models.SourceQRScan)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.env.ledger.Register(s.ctx, s.env.op, "E1", "ghost", models.SourceQRScan)
	s.ErrorIs(err, sentinel.ErrPersonNotFound)
}

func (s *LedgerSuite) TestRegisterPublishesOnlyOnCreate() {
	ch, cancel := s.env.hub.Subscribe("E1")
	defer cancel()

	_, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	_, err = s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)

	s.Require().Len(ch, 1)
	c := <-ch
	s.Equal(events.KindRegistration, c.Kind)
	s.Equal("created", c.Action)
}

func (s *LedgerSuite) TestListByEventNewestFirst() {
	_, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	_, err = s.env.ledger.Register(s.ctx, s.env.op, "E1", "P2", models.SourceEmbeddedForm)
	s.Require().NoError(err)

	regs, err := s.env.ledger.ListByEvent(s.ctx, "E1")
	s.Require().NoError(err)
	s.Require().Len(regs, 2)
	s.Equal("P2", regs[0].PersonID)
	s.Equal("P1", regs[1].PersonID)

	empty, err := s.env.ledger.ListByEvent(s.ctx, "E2")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *LedgerSuite) TestEditPatchesColumnsAndExtra() {
	res, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	id := res.Registration.ID

	reg, err := s.env.ledger.Edit(s.ctx, id, map[string]any{
		"status": models.RegStatusAttended,
		"notes":  "arrived late",
		"seat":   "B12",
	})
	s.Require().NoError(err)
	s.Equal(models.RegStatusAttended, reg.Status)
	s.Equal("arrived late", reg.Notes)
	s.Equal("B12", reg.Extra["seat"])

	reg, err = s.env.ledger.Edit(s.ctx, id, map[string]any{"seat": nil})
	s.Require().NoError(err)
	s.NotContains(reg.Extra, "seat")

	stored, err := s.env.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.RegStatusAttended, stored.Status)
	s.Equal("E1", stored.EventID)
}

func (s *LedgerSuite) TestEditRejectsIdentityAndBadValues() {
	res, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	id := res.Registration.ID

	_, err = s.env.ledger.Edit(s.ctx, id, map[string]any{"personId": "P2"})
	s.ErrorIs(err, sentinel.ErrValidation)
	_, err = s.env.ledger.Edit(s.ctx, id, map[string]any{"source": "fax"})
	s.ErrorIs(err, sentinel.ErrValidation)
	_, err = s.env.ledger.Edit(s.ctx, id, map[string]any{"status": ""})
	s.ErrorIs(err, sentinel.ErrValidation)

	_, err = s.env.ledger.Edit(s.ctx, id, map[string]any{"notes": "keep me"})
	s.Require().NoError(err)
	_, err = s.env.ledger.Edit(s.ctx, id, map[string]any{"notes": 42.0})
	s.ErrorIs(err, sentinel.ErrValidation)
	stored, err := s.env.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("keep me", stored.Notes)

	reg, err := s.env.ledger.Edit(s.ctx, id, map[string]any{"notes": nil})
	s.Require().NoError(err)
	s.Empty(reg.Notes)
}

func (s *LedgerSuite) TestRemoveThenEditReportsNotFound() {
	res, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	id := res.Registration.ID

	s.Require().NoError(s.env.ledger.Remove(s.ctx, id))
	s.EqualValues(0, s.count("E1", "P1"))

	s.ErrorIs(s.env.ledger.Remove(s.ctx, id), sentinel.ErrNotFound)
	_, err = s.env.ledger.Edit(s.ctx, id, map[string]any{"notes": "x"})
	s.ErrorIs(err, sentinel.ErrNotFound)

	// the pair can be registered again after removal
	again, err := s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	s.Equal(RegisterCreated, again.Status)
}

func (s *LedgerSuite) TestExists() {
	ok, err := s.env.ledger.Exists(s.ctx, "E1", "P1")
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.env.ledger.Register(s.ctx, s.env.op, "E1", "P1", models.SourceQRScan)
	s.Require().NoError(err)
	ok, err = s.env.ledger.Exists(s.ctx, "E1", "P1")
	s.Require().NoError(err)
	s.True(ok)
}
