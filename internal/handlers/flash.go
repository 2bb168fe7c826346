package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lojf/attendance/internal/sentinel"
)

// apiError is the body of every non-2xx JSON response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

var errText = map[string]string{
	"invalid_payload":  "Could not read that code. Scan again or type a phone number or email.",
	"person_not_found": "No person matches that code.",
	"no_room":          "No rooms are assigned to this event. Assign a room before checking children in.",
	"room_required":    "Choose a room for this child.",
	"invalid_room":     "That room is not assigned to this event.",
	"not_registered":   "Register the parent for this event before checking a child in.",
	"not_found":        "That record no longer exists. It may have been removed by another operator.",
	"write_conflict":   "Someone else changed this at the same time. Refresh and try again.",
	"invalid_state":    "That action is not allowed in the record's current state.",
	"validation":       "Some required fields are missing or invalid.",
	"scanner_busy":     "Still processing the previous scan.",
	"unauthorized":     "Sign in as an operator first.",
	"forbidden":        "Your operator role cannot make changes.",
	"bad_request":      "Malformed request.",
	"internal":         "Something went wrong. Try again.",
}

var okText = map[string]string{
	"created":        "Registration completed.",
	"already-exists": "Already registered. You can continue to child check-in.",
	"checked_in":     "Child checked in.",
	"checked_out":    "Child checked out.",
	"deleted":        "Removed.",
	"saved":          "Saved.",
}

// classify maps the error taxonomy onto an HTTP status and message key.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, sentinel.ErrInvalidPayload):
		return http.StatusUnprocessableEntity, "invalid_payload"
	case errors.Is(err, sentinel.ErrPersonNotFound):
		return http.StatusNotFound, "person_not_found"
	case errors.Is(err, sentinel.ErrNoRoomAvailable):
		return http.StatusConflict, "no_room"
	case errors.Is(err, sentinel.ErrRoomRequired):
		return http.StatusUnprocessableEntity, "room_required"
	case errors.Is(err, sentinel.ErrInvalidRoom):
		return http.StatusUnprocessableEntity, "invalid_room"
	case errors.Is(err, sentinel.ErrNotRegistered):
		return http.StatusConflict, "not_registered"
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sentinel.ErrWriteConflict):
		return http.StatusConflict, "write_conflict"
	case errors.Is(err, sentinel.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, sentinel.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, sentinel.ErrBusy):
		return http.StatusTooManyRequests, "scanner_busy"
	}
	return http.StatusInternalServerError, "internal"
}

func (d *Deps) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	body := apiError{Code: code, Message: errText[code]}
	if status == http.StatusInternalServerError {
		d.Log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		body.Detail = err.Error()
	}
	writeJSON(w, status, body)
}

func failCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, apiError{Code: code, Message: errText[code]})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes the body into dst, rejecting unknown fields.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// message wraps a payload with the operator-facing text for key.
func message(key string, data any) map[string]any {
	return map[string]any{"message": okText[key], "data": data}
}
