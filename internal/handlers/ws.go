package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/happier-dev/happier-sub002/internal/realtime"
)

const declareTimeout = 10 * time.Second

// handleWebsocket upgrades the connection, reads the membership declaration,
// and registers the socket with the router. Membership is not persisted:
// a reconnecting client re-declares.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("websocket accept failed", "error", err)
		return
	}

	declCtx, cancel := context.WithTimeout(r.Context(), declareTimeout)
	_, data, err := conn.Read(declCtx)
	cancel()
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "expected declaration")
		return
	}

	var decl realtime.ConnDecl
	if err := json.Unmarshal(data, &decl); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "invalid declaration")
		return
	}
	// The declared account is always the authenticated one; clients cannot
	// join another account's rooms.
	decl.AccountID = accountID

	socketID := uuid.NewString()
	if err := s.deps.Router.Connect(socketID, decl); err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	s.deps.IO.Add(socketID, conn)

	defer func() {
		s.deps.Router.Disconnect(socketID)
		s.deps.IO.Remove(socketID)
	}()

	// Drain the read side until the client goes away; inbound frames beyond
	// the declaration are ignored.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
