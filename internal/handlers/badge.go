package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lojf/attendance/internal/services"
)

// GET /api/people/{personID}/badge.png
func (d *Deps) Badge(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	// ensure the person exists
	p, err := d.Directory.FindPersonByID(r.Context(), personID)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	size := 256
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s >= 64 && s <= 1024 {
		size = s
	}
	png, err := services.BadgePNG(p.ID, size)
	if err != nil {
		http.Error(w, "failed to generate qr", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
