package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/happier-dev/happier-sub002/internal/ledger"
	"github.com/happier-dev/happier-sub002/internal/models"
)

type changesResponse struct {
	Changes    []models.ChangeRecord `json:"changes"`
	NextCursor int64                 `json:"next_cursor"`
}

type goneResponse struct {
	Error  string `json:"error"`
	Cursor int64  `json:"cursor"`
}

// handleListChanges is the catch-up pagination endpoint. An unresolvable
// cursor answers 410 with the authoritative head so the client falls back to
// a full snapshot instead of paginating forever.
func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)

	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if err != nil || after < 0 {
		writeError(w, http.StatusBadRequest, "invalid after cursor")
		return
	}
	limit := s.deps.PageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < limit {
			limit = n
		}
	}

	if err := s.deps.Ledger.CheckCursor(r.Context(), accountID, after); err != nil {
		var gone *ledger.CursorGoneError
		if errors.As(err, &gone) {
			writeJSON(w, http.StatusGone, goneResponse{Error: "cursor gone", Cursor: gone.Current})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	changes, next, err := s.deps.Ledger.ListChanges(r.Context(), accountID, after, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if changes == nil {
		changes = []models.ChangeRecord{}
	}
	writeJSON(w, http.StatusOK, changesResponse{Changes: changes, NextCursor: next})
}

// handleCursorStatus lets clients check whether a stored cursor is still
// usable before attempting incremental catch-up.
func (s *Server) handleCursorStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Ledger.CursorState(r.Context(), accountFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
