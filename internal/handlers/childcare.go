package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lojf/attendance/internal/services"
)

// GET /api/events/{eventID}/childcare
func (d *Deps) ListChildCare(w http.ResponseWriter, r *http.Request) {
	entries, err := d.ChildCare.ListByEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// POST /api/events/{eventID}/childcare
func (d *Deps) CheckInChild(w http.ResponseWriter, r *http.Request) {
	var req services.CheckInRequest
	if err := readJSON(w, r, &req); err != nil {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	// the path wins over any eventId in the body
	req.EventID = chi.URLParam(r, "eventID")

	entry, err := d.ChildCare.CheckIn(r.Context(), req)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message("checked_in", entry))
}

// POST /api/childcare/{id}/checkout
func (d *Deps) CheckOutChild(w http.ResponseWriter, r *http.Request) {
	entry, err := d.ChildCare.CheckOut(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("checked_out", entry))
}

// DELETE /api/childcare/{id}
func (d *Deps) DeleteChildCare(w http.ResponseWriter, r *http.Request) {
	if err := d.ChildCare.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		d.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
