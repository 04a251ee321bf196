package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Tag      string `json:"tag"`
		Metadata string `json:"metadata"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Sessions.Create(r.Context(), accountFrom(r), req.ID, req.Tag, req.Metadata)
	writeCreateResult(w, res, err)
}

func (s *Server) handleSessionMetadata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64  `json:"expected_version"`
		Metadata        string `json:"metadata"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Sessions.UpdateMetadata(r.Context(), accountFrom(r), chi.URLParam(r, "id"), req.ExpectedVersion, req.Metadata)
	writeValueResult(w, res, err)
}

func (s *Server) handleSessionAgentState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64  `json:"expected_version"`
		AgentState      string `json:"agent_state"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Sessions.UpdateAgentState(r.Context(), accountFrom(r), chi.URLParam(r, "id"), req.ExpectedVersion, req.AgentState)
	writeValueResult(w, res, err)
}

func (s *Server) handleCreateArtifact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Header []byte `json:"header"`
		Body   []byte `json:"body"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Artifacts.Create(r.Context(), accountFrom(r), req.ID, req.Header, req.Body)
	writeCreateResult(w, res, err)
}

func (s *Server) handleArtifactHeader(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64  `json:"expected_version"`
		Header          []byte `json:"header"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Artifacts.UpdateHeader(r.Context(), accountFrom(r), chi.URLParam(r, "id"), req.ExpectedVersion, req.Header)
	writeBytesResult(w, res, err)
}

func (s *Server) handleArtifactBody(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64  `json:"expected_version"`
		Body            []byte `json:"body"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Artifacts.UpdateBody(r.Context(), accountFrom(r), chi.URLParam(r, "id"), req.ExpectedVersion, req.Body)
	writeBytesResult(w, res, err)
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID   string `json:"session_id"`
		RecipientID string `json:"recipient_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Shares.Create(r.Context(), accountFrom(r), req.SessionID, req.RecipientID)
	writeCreateResult(w, res, err)
}

func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Shares.Revoke(r.Context(), accountFrom(r), chi.URLParam(r, "id"))
	writeCreateResult(w, res, err)
}

func (s *Server) handleAccountSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64  `json:"expected_version"`
		Settings        string `json:"settings"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Accounts.UpdateSettings(r.Context(), accountFrom(r), req.ExpectedVersion, req.Settings)
	writeValueResult(w, res, err)
}

func (s *Server) handleCreateMachine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Metadata string `json:"metadata"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Machines.Create(r.Context(), accountFrom(r), req.ID, req.Metadata)
	writeCreateResult(w, res, err)
}

func (s *Server) handleMachineMetadata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64  `json:"expected_version"`
		Metadata        string `json:"metadata"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Machines.UpdateMetadata(r.Context(), accountFrom(r), chi.URLParam(r, "id"), req.ExpectedVersion, req.Metadata)
	writeValueResult(w, res, err)
}

func (s *Server) handleMachineDaemonState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedVersion int64  `json:"expected_version"`
		DaemonState     string `json:"daemon_state"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Machines.UpdateDaemonState(r.Context(), accountFrom(r), chi.URLParam(r, "id"), req.ExpectedVersion, req.DaemonState)
	writeValueResult(w, res, err)
}
