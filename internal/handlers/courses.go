package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/services"
)

type courseResult struct {
	Completion *models.CourseCompletion  `json:"completion,omitempty"`
	Recompute  *services.RecomputeResult `json:"recompute,omitempty"`
}

// POST /api/courses/start
func (d *Deps) StartCourse(w http.ResponseWriter, r *http.Request) {
	var req services.StartRequest
	if err := readJSON(w, r, &req); err != nil {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	req.StartedBy = currentOperator(r).Name

	cc, created, err := d.Courses.Start(r.Context(), req)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, message("saved", courseResult{Completion: cc}))
}

// POST /api/courses/{id}/complete
func (d *Deps) CompleteCourse(w http.ResponseWriter, r *http.Request) {
	cc, rr, err := d.Courses.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("saved", courseResult{Completion: cc, Recompute: rr}))
}

// DELETE /api/courses/{id}
func (d *Deps) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	rr, err := d.Courses.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("deleted", courseResult{Recompute: rr}))
}

type assignRequest struct {
	SubcategoryID string `json:"subcategoryId"`
}

// POST /api/people/{personID}/assignments
func (d *Deps) AssignCourse(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := readJSON(w, r, &req); err != nil {
		failCode(w, http.StatusBadRequest, "bad_request")
		return
	}
	a, err := d.Courses.Assign(r.Context(), chi.URLParam(r, "personID"), req.SubcategoryID, currentOperator(r).Name)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("saved", a))
}

// GET /api/people/{personID}/progress
func (d *Deps) PersonProgress(w http.ResponseWriter, r *http.Request) {
	ps, err := d.Courses.PersonProgress(r.Context(), chi.URLParam(r, "personID"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// GET /api/people/{personID}/progress/{subcategoryID}
func (d *Deps) SubcategoryProgress(w http.ResponseWriter, r *http.Request) {
	p, err := d.Courses.Progress(r.Context(), chi.URLParam(r, "personID"), chi.URLParam(r, "subcategoryID"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
