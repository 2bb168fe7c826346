package handlers

import "net/http"

// GET /healthz
func (d *Deps) Health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := d.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		d.Log.Error("health check", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
