// Package scan runs the operator's scan loop: one decode at a time, resolved,
// registered, and handed back with the next step to offer.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lojf/attendance/internal/identity"
	"github.com/lojf/attendance/internal/metrics"
	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/operator"
	"github.com/lojf/attendance/internal/sentinel"
	"github.com/lojf/attendance/internal/services"
)

// Stream is the camera (or any decode source) held open while scanning.
type Stream interface {
	Stop() error
}

// Session is one operator's scanner. The guard admits a single decode at a
// time and holds the token of the Submit that owns it (0 when idle).
type Session struct {
	Operator operator.Operator

	mu     sync.Mutex
	stream Stream
	cancel context.CancelFunc
	guard  atomic.Uint64
	seq    atomic.Uint64
}

func NewSession(op operator.Operator, stream Stream) *Session {
	return &Session{Operator: op, stream: stream}
}

// attach swaps in a new stream, stopping the previous one.
func (s *Session) attach(stream Stream) error {
	s.mu.Lock()
	prev := s.stream
	s.stream = stream
	s.mu.Unlock()
	if prev != nil && prev != stream {
		return prev.Stop()
	}
	return nil
}

func (s *Session) busy() bool { return s.guard.Load() != 0 }

func (s *Session) streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// acquire takes the guard for one Submit and returns its token.
func (s *Session) acquire(cancel context.CancelFunc) (uint64, bool) {
	tok := s.seq.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guard.CompareAndSwap(0, tok) {
		return 0, false
	}
	s.cancel = cancel
	return tok, true
}

// release frees the guard only if tok still owns it; a Submit that outlived
// an Abort must not free a newer Submit's guard.
func (s *Session) release(tok uint64) {
	s.mu.Lock()
	if s.guard.CompareAndSwap(tok, 0) {
		s.cancel = nil
	}
	s.mu.Unlock()
}

// reset cancels the in-flight Submit, if any, and frees the guard.
func (s *Session) reset() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.guard.Store(0)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) stopStream() error {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	return st.Stop()
}

// Outcome is the result of one processed decode.
type Outcome struct {
	EventID           string                   `json:"eventId"`
	Resolution        *identity.Resolution     `json:"resolution"`
	Registration      *services.RegisterResult `json:"registration,omitempty"`
	OfferChildCheckIn bool                     `json:"offerChildCheckIn"`
}

// Registrar is the slice of the ledger the scan loop needs.
type Registrar interface {
	Register(ctx context.Context, op operator.Operator, eventID, personID, source string) (*services.RegisterResult, error)
}

type Resolver interface {
	Resolve(ctx context.Context, op operator.Operator, raw string) (*identity.Resolution, error)
}

type Controller struct {
	resolver Resolver
	ledger   Registrar
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewController(resolver Resolver, ledger Registrar, m *metrics.Metrics, log *slog.Logger) *Controller {
	return &Controller{resolver: resolver, ledger: ledger, metrics: m, log: log}
}

// Submit processes one decode for eventID. A second call while one is in
// flight fails with sentinel.ErrBusy. Whatever happens, the guard is released
// and the stream stopped before returning.
func (c *Controller) Submit(ctx context.Context, sess *Session, eventID, raw, source string) (out *Outcome, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	tok, ok := sess.acquire(cancel)
	if !ok {
		c.metrics.Scan("busy")
		return nil, sentinel.ErrBusy
	}
	defer func() {
		if serr := sess.stopStream(); serr != nil {
			c.log.Warn("stop scan stream", "operator", sess.Operator.ID, "err", serr)
		}
		sess.release(tok)
		c.metrics.Scan(outcomeLabel(out, err))
	}()

	if source == "" {
		source = models.SourceQRScan
	}

	res, err := c.resolver.Resolve(ctx, sess.Operator, raw)
	if err != nil {
		return nil, err
	}
	out = &Outcome{EventID: eventID, Resolution: res}
	if !res.Resolved() {
		return out, nil
	}

	reg, err := c.ledger.Register(ctx, sess.Operator, eventID, res.PersonID, source)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", res.PersonID, err)
	}
	out.Registration = reg
	// a repeat scan still offers child check-in
	out.OfferChildCheckIn = true
	return out, nil
}

// Abort stops the stream, cancels an in-flight Submit and clears the guard.
// Safe to call at any time.
func (c *Controller) Abort(sess *Session) error {
	err := sess.stopStream()
	sess.reset()
	c.metrics.Scan("aborted")
	return err
}

func outcomeLabel(out *Outcome, err error) string {
	switch {
	case errors.Is(err, sentinel.ErrInvalidPayload):
		return "invalid"
	case errors.Is(err, sentinel.ErrPersonNotFound):
		return "person-not-found"
	case err != nil:
		return "error"
	case out == nil || out.Resolution == nil:
		return "error"
	case !out.Resolution.Resolved():
		return string(out.Resolution.Kind)
	case out.Registration != nil:
		return string(out.Registration.Status)
	}
	return "resolved"
}
