package httpapi

import "net/http"

// handlePerfLatency reports the rolling per-stage latency window; reset=1
// clears it first.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reset") == "1" {
		s.metrics.ResetStreamStages()
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotStreamStages())
}
