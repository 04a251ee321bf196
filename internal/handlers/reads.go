package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/happier-dev/happier-sub002/internal/models"
	"github.com/happier-dev/happier-sub002/internal/services"
)

func writeReadError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	slog.Error("read failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Sessions.List(r.Context(), accountFrom(r))
	if err != nil {
		writeReadError(w, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.Context(), accountFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeReadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := s.deps.Machines.List(r.Context(), accountFrom(r))
	if err != nil {
		writeReadError(w, err)
		return
	}
	if machines == nil {
		machines = []models.Machine{}
	}
	writeJSON(w, http.StatusOK, machines)
}

func (s *Server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Machines.Get(r.Context(), accountFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeReadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Artifacts.Get(r.Context(), accountFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeReadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	shares, err := s.deps.Shares.List(r.Context(), accountFrom(r))
	if err != nil {
		writeReadError(w, err)
		return
	}
	if shares == nil {
		shares = []models.Share{}
	}
	writeJSON(w, http.StatusOK, shares)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Accounts.Get(r.Context(), accountFrom(r))
	if err != nil {
		writeReadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
