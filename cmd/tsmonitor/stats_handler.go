package main

import (
	"encoding/json"
	"net/http"

	"github.com/zsiec/msmonitor/internal/supervisor"
)

// newStatsHandler builds the one HTTP endpoint this repo ships: a read-only
// JSON snapshot of every registered stream's stats. Stands in for spec.md
// §1's "external HTTP control surface", which is explicitly out of scope
// beyond this thin example (no stream-list editing, no persistence).
func newStatsHandler(mgr *supervisor.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(mgr.GetAllStats()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}
