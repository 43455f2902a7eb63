package api

import (
	"io"
	"net/http"

	"github.com/nerrad567/gray-twin/internal/intake"
)

// handlePushUpdates applies a batch of southbound update records as one
// command. The body is a JSON update object or an array of them; any
// invalid record rejects the whole batch.
func (s *Server) handlePushUpdates(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	updates, err := intake.Decode(body)
	if err != nil {
		s.writeTwinError(w, r, err)
		return
	}

	res, err := s.pusher.Push(r.Context(), updates...).Wait(r.Context())
	if err != nil {
		s.writeTwinError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"changed": res.Changed,
		"skipped": res.Skipped,
	})
}
