package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lojf/attendance/internal/operator"
)

const (
	operatorCookieName = "operator_session"
	operatorSessionTTL = 24 * time.Hour
)

type operatorSession struct {
	op      operator.Operator
	expires time.Time
}

// OperatorSessions maps session cookies to signed-in operators until they
// expire.
type OperatorSessions struct {
	mu       sync.Mutex
	sessions map[string]operatorSession
	ttl      time.Duration
	now      func() time.Time
}

func NewOperatorSessions() *OperatorSessions {
	return &OperatorSessions{sessions: make(map[string]operatorSession), ttl: operatorSessionTTL, now: time.Now}
}

// put stores the session and prunes expired ones, returning their operators.
func (s *OperatorSessions) put(token string, op operator.Operator) (time.Time, []operator.Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var expired []operator.Operator
	for t, sess := range s.sessions {
		if !now.Before(sess.expires) {
			expired = append(expired, sess.op)
			delete(s.sessions, t)
		}
	}
	exp := now.Add(s.ttl)
	s.sessions[token] = operatorSession{op: op, expires: exp}
	return exp, expired
}

// get returns the live session for token. An expired one is dropped and
// reported with ok false and expired true.
func (s *OperatorSessions) get(token string) (op operator.Operator, ok, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, found := s.sessions[token]
	if !found {
		return operator.Operator{}, false, false
	}
	if !s.now().Before(sess.expires) {
		delete(s.sessions, token)
		return sess.op, false, true
	}
	return sess.op, true, false
}

func (s *OperatorSessions) drop(token string) (operator.Operator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	delete(s.sessions, token)
	return sess.op, ok
}

// RequireOperator blocks access unless signed in, and puts the operator on
// the request context.
func (d *Deps) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(operatorCookieName)
		if err != nil || c.Value == "" {
			failCode(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		op, ok, expired := d.Operators.get(c.Value)
		if expired {
			d.Sessions.Close(op.ID)
			d.Log.Info("operator session expired", "operator", op.ID)
		}
		if !ok {
			failCode(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(operator.WithOperator(r.Context(), op)))
	})
}

// RequireEditor admits operators whose capability allows changes.
func RequireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := operator.From(r.Context())
		if !ok || !op.CanEdit {
			failCode(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentOperator(r *http.Request) operator.Operator {
	op, _ := operator.From(r.Context())
	return op
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// POST /api/operator/login
func (d *Deps) OperatorLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(d.Cfg.OperatorPassword)) != 1 {
		failCode(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "operator"
	}
	op := operator.Operator{
		ID:       uuid.NewString(),
		Name:     name,
		ChurchID: d.Cfg.ChurchID,
		CanEdit:  d.Cfg.OperatorCanEdit,
	}
	token := uuid.NewString()
	expires, stale := d.Operators.put(token, op)
	for _, o := range stale {
		d.Sessions.Close(o.ID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     operatorCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	d.Log.Info("operator signed in", "operator", op.ID, "name", op.Name)
	writeJSON(w, http.StatusOK, op)
}

// POST /api/operator/logout
func (d *Deps) OperatorLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(operatorCookieName); err == nil {
		if op, ok := d.Operators.drop(c.Value); ok {
			d.Sessions.Close(op.ID)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     operatorCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}
