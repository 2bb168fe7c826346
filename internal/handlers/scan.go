package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/services"
)

type scanRequest struct {
	Payload string `json:"payload"`
	// Manual is set when the text came from the typed field, not the camera.
	Manual bool `json:"manual"`
}

// POST /api/events/{eventID}/scan
func (d *Deps) ScanSubmit(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	var req scanRequest
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Payload) == "" {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	source := models.SourceQRScan
	if req.Manual {
		source = models.SourceManualCheckin
	}

	sess := d.Sessions.For(currentOperator(r))
	out, err := d.Scans.Submit(r.Context(), sess, eventID, req.Payload, source)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	key := ""
	status := http.StatusOK
	if out.Registration != nil {
		key = string(out.Registration.Status)
		if out.Registration.Status == services.RegisterCreated {
			status = http.StatusCreated
		}
	}
	writeJSON(w, status, message(key, out))
}

// POST /api/events/{eventID}/scan/abort
func (d *Deps) ScanAbort(w http.ResponseWriter, r *http.Request) {
	sess := d.Sessions.For(currentOperator(r))
	if err := d.Scans.Abort(sess); err != nil {
		d.Log.Warn("abort scan", "operator", sess.Operator.ID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/resolve
func (d *Deps) Resolve(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := readJSON(w, r, &req); err != nil {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	res, err := d.Resolver.Resolve(r.Context(), currentOperator(r), req.Payload)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
