package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/services"
)

type registerRequest struct {
	PersonID string `json:"personId"`
	Source   string `json:"source"`
}

// GET /api/events/{eventID}/registrations
func (d *Deps) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := d.Ledger.ListByEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// POST /api/events/{eventID}/registrations
func (d *Deps) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(w, r, &req); err != nil {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	if req.Source == "" {
		req.Source = models.SourceEmbeddedForm
	}
	res, err := d.Ledger.Register(r.Context(), currentOperator(r), chi.URLParam(r, "eventID"), req.PersonID, req.Source)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Status == services.RegisterCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, message(string(res.Status), res))
}

// PATCH /api/registrations/{id}
func (d *Deps) EditRegistration(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := readJSON(w, r, &fields); err != nil || len(fields) == 0 {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	reg, err := d.Ledger.Edit(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("saved", reg))
}

// DELETE /api/registrations/{id}
func (d *Deps) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	if err := d.Ledger.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		d.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/events/{eventID}/registrations.csv
func (d *Deps) RegistrationsCSV(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	type csvRow struct {
		ID           string
		Status       string
		Source       string
		RegisteredAt time.Time
		PersonID     string
		FirstName    string
		LastName     string
		Phone        string
		Email        string
		Children     int
	}
	var rows []csvRow
	if err := d.DB.WithContext(r.Context()).Table("registrations").
		Select(`registrations.id, registrations.status, registrations.source, registrations.registered_at,
		        registrations.person_id,
		        COALESCE(people.first_name, '') AS first_name, COALESCE(people.last_name, '') AS last_name,
		        COALESCE(people.phone, '') AS phone, COALESCE(people.email, '') AS email,
		        (SELECT COUNT(*) FROM child_care_entries cc
		          WHERE cc.person_id = registrations.person_id AND cc.event_id = registrations.event_id) AS children`).
		Joins("LEFT JOIN people ON people.id = registrations.person_id").
		Where("registrations.event_id = ?", eventID).
		Order("registrations.registered_at DESC").
		Scan(&rows).Error; err != nil {
		d.fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("registrations-%s-%s.csv", eventID, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	_ = cw.Write([]string{"Registered At", "First Name", "Last Name", "Phone", "Email", "Status", "Source", "Children", "Person ID", "Registration ID"})
	for _, row := range rows {
		_ = cw.Write([]string{
			row.RegisteredAt.Format("2006-01-02 15:04"),
			row.FirstName,
			row.LastName,
			row.Phone,
			row.Email,
			row.Status,
			row.Source,
			fmt.Sprint(row.Children),
			row.PersonID,
			row.ID,
		})
	}
}
