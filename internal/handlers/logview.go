package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// heartbeatEvery keeps idle SSE connections open through proxies.
var heartbeatEvery = 25 * time.Second

// GET /api/events/{eventID}/log
func (d *Deps) EventLog(w http.ResponseWriter, r *http.Request) {
	snap, err := d.LogView.RefreshAll(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/events/{eventID}/log/stream pushes a fresh snapshot on connect and
// after every change to the event.
func (d *Deps) EventLogStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	changes, cancel := d.Hub.Subscribe(eventID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	push := func(kind string) bool {
		snap, err := d.LogView.RefreshAll(r.Context(), eventID)
		if err != nil {
			d.Log.Warn("log stream refresh", "event_id", eventID, "err", err)
			return r.Context().Err() == nil
		}
		b, err := json.Marshal(snap)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !push("snapshot") {
		return
	}

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			// collapse a burst of changes into one refresh
			for drained := false; !drained; {
				select {
				case _, ok := <-changes:
					if !ok {
						return
					}
				default:
					drained = true
				}
			}
			if !push("snapshot") {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
