package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/happier-dev/happier-sub002/internal/models"
	"github.com/happier-dev/happier-sub002/internal/presence"
	"github.com/happier-dev/happier-sub002/internal/realtime"
)

type pingRequest struct {
	Timestamp int64 `json:"ts"`
}

type pingResponse struct {
	Queued bool `json:"queued"`
}

// handleSessionPing accepts a liveness ping. The activity cache validates
// access (cached per TTL) and decides whether the ping is worth a write;
// either way the session room gets an ephemeral activity broadcast.
func (s *Server) handleSessionPing(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ts, ok := s.pingTimestamp(w, r)
	if !ok {
		return
	}

	queued, err := s.deps.Activity.QueueSessionUpdate(r.Context(), accountFrom(r), sessionID, ts)
	if err != nil {
		if errors.Is(err, presence.ErrAccessDenied) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if queued {
		// Best-effort: a failed enqueue is logged and the ping retried by
		// the client's next heartbeat, never surfaced as a request failure.
		if err := s.deps.Ingestor.SessionAlive(r.Context(), sessionID, ts); err != nil {
			slog.Warn("failed to queue session liveness", "session", sessionID, "error", err)
		}
	}

	s.deps.Router.EmitEphemeral(realtime.SessionScoped(sessionID), &models.EphemeralPayload{
		Type:     models.EphemeralSessionActivity,
		ID:       sessionID,
		Active:   true,
		ActiveAt: ts,
	})
	writeJSON(w, http.StatusOK, pingResponse{Queued: queued})
}

func (s *Server) handleMachinePing(w http.ResponseWriter, r *http.Request) {
	machineID := chi.URLParam(r, "id")
	accountID := accountFrom(r)
	ts, ok := s.pingTimestamp(w, r)
	if !ok {
		return
	}

	queued, err := s.deps.Activity.QueueMachineUpdate(r.Context(), accountID, machineID, ts)
	if err != nil {
		if errors.Is(err, presence.ErrAccessDenied) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if queued {
		if err := s.deps.Ingestor.MachineAlive(r.Context(), accountID, machineID, ts); err != nil {
			slog.Warn("failed to queue machine liveness", "machine", machineID, "error", err)
		}
	}

	s.deps.Router.EmitEphemeral(realtime.UserScoped(accountID), &models.EphemeralPayload{
		Type:     models.EphemeralMachineActivity,
		ID:       machineID,
		Active:   true,
		ActiveAt: ts,
	})
	writeJSON(w, http.StatusOK, pingResponse{Queued: queued})
}

func (s *Server) pingTimestamp(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var req pingRequest
	if !decodeBody(w, r, &req) {
		return 0, false
	}
	ts := req.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	if ts < 0 {
		writeError(w, http.StatusBadRequest, "invalid timestamp")
		return 0, false
	}
	return ts, true
}
