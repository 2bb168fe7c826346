package scan

import (
	"sync"

	"github.com/lojf/attendance/internal/operator"
)

// Registry keeps one Session per operator id so the busy guard spans all of
// that operator's requests.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// For returns the operator's session, creating it on first use.
func (r *Registry) For(op operator.Operator) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[op.ID]
	if !ok {
		s = NewSession(op, nil)
		r.sessions[op.ID] = s
	}
	return s
}

// Close drops the operator's session (logout).
func (r *Registry) Close(operatorID string) {
	r.mu.Lock()
	s := r.sessions[operatorID]
	delete(r.sessions, operatorID)
	r.mu.Unlock()
	if s != nil {
		_ = s.stopStream()
		s.reset()
	}
}
