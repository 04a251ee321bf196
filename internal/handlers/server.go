package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/happier-dev/happier-sub002/internal/models"
	"github.com/happier-dev/happier-sub002/internal/presence"
	"github.com/happier-dev/happier-sub002/internal/realtime"
	"github.com/happier-dev/happier-sub002/internal/services"
)

// ChangeLog is the slice of the ledger the route layer needs.
type ChangeLog interface {
	ListChanges(ctx context.Context, accountID string, after int64, limit int) ([]models.ChangeRecord, int64, error)
	CursorState(ctx context.Context, accountID string) (models.AccountCursor, error)
	CheckCursor(ctx context.Context, accountID string, after int64) error
}

// Deps wires the core components into the route layer.
type Deps struct {
	Ledger    ChangeLog
	Sessions  *services.SessionService
	Artifacts *services.ArtifactService
	Shares    *services.ShareService
	Accounts  *services.AccountService
	Machines  *services.MachineService
	Ingestor  presence.Ingestor
	Activity  *presence.ActivityCache
	Router    *realtime.Router
	IO        *realtime.WebsocketIO
	JWTSecret string
	PageLimit int
}

type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/changes", s.handleListChanges)
		r.Get("/changes/cursor", s.handleCursorStatus)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions", s.handleCreateSession)
		r.Post("/sessions/{id}/metadata", s.handleSessionMetadata)
		r.Post("/sessions/{id}/agent-state", s.handleSessionAgentState)

		r.Get("/artifacts/{id}", s.handleGetArtifact)
		r.Post("/artifacts", s.handleCreateArtifact)
		r.Post("/artifacts/{id}/header", s.handleArtifactHeader)
		r.Post("/artifacts/{id}/body", s.handleArtifactBody)

		r.Get("/shares", s.handleListShares)
		r.Post("/shares", s.handleCreateShare)
		r.Delete("/shares/{id}", s.handleRevokeShare)

		r.Get("/account", s.handleGetAccount)
		r.Post("/account/settings", s.handleAccountSettings)

		r.Get("/machines", s.handleListMachines)
		r.Get("/machines/{id}", s.handleGetMachine)
		r.Post("/machines", s.handleCreateMachine)
		r.Post("/machines/{id}/metadata", s.handleMachineMetadata)
		r.Post("/machines/{id}/daemon-state", s.handleMachineDaemonState)

		r.Post("/presence/session/{id}", s.handleSessionPing)
		r.Post("/presence/machine/{id}", s.handleMachinePing)

		r.Get("/ws", s.handleWebsocket)
	})

	return r
}
