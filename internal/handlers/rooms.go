package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/models"
)

// GET /api/events/{eventID}/rooms
func (d *Deps) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := d.Catalog.ListRoomsForEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// PUT /api/events/{eventID}/rooms replaces the event's room list.
func (d *Deps) AssignRooms(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	var rooms []models.EventRoom
	if err := readJSON(w, r, &rooms); err != nil {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	if err := d.Catalog.AssignRooms(r.Context(), eventID, rooms); err != nil {
		d.fail(w, r, err)
		return
	}
	events.Emit(d.Hub, events.KindRooms, eventID, "", "updated")

	stored, err := d.Catalog.ListRoomsForEvent(r.Context(), eventID)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("saved", stored))
}
