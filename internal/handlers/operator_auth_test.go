package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojf/attendance/internal/config"
	"github.com/lojf/attendance/internal/db/dbtest"
	"github.com/lojf/attendance/internal/operator"
	"github.com/lojf/attendance/internal/scan"
)

func authDeps(now *time.Time) *Deps {
	d := &Deps{
		Cfg:       config.Config{OperatorPassword: "pw", OperatorCanEdit: true, ChurchID: "church-1"},
		Sessions:  scan.NewRegistry(),
		Operators: NewOperatorSessions(),
		Log:       dbtest.Logger(),
	}
	d.Operators.now = func() time.Time { return *now }
	return d
}

func login(t *testing.T, d *Deps) (*http.Cookie, operator.Operator) {
	t.Helper()
	rec := httptest.NewRecorder()
	d.OperatorLogin(rec, httptest.NewRequest(http.MethodPost, "/api/operator/login", strings.NewReader(`{"name":"Desk","password":"pw"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var op operator.Operator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &op))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], op
}

func TestOperatorSessionExpires(t *testing.T) {
	now := time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC)
	d := authDeps(&now)
	cookie, op := login(t, d)
	assert.True(t, now.Add(operatorSessionTTL).Equal(cookie.Expires))

	protected := d.RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/events/E1/registrations", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		return rec.Code
	}

	sess := d.Sessions.For(op)
	now = now.Add(operatorSessionTTL - time.Minute)
	assert.Equal(t, http.StatusNoContent, call())
	assert.Same(t, sess, d.Sessions.For(op))

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusUnauthorized, call())
	assert.NotSame(t, sess, d.Sessions.For(op), "scan session closed with the operator session")
	assert.Equal(t, http.StatusUnauthorized, call())
}

func TestLoginPrunesExpiredSessions(t *testing.T) {
	now := time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC)
	d := authDeps(&now)
	_, first := login(t, d)
	sess := d.Sessions.For(first)

	now = now.Add(operatorSessionTTL)
	login(t, d)
	assert.Len(t, d.Operators.sessions, 1)
	assert.NotSame(t, sess, d.Sessions.For(first))
}
