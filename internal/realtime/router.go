package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/happier-dev/happier-sub002/internal/models"
)

// IO is the transport seam. Implementations must not block: delivery is
// fire-and-forget and a slow socket must never apply backpressure to the
// caller. Tests swap the transport through SetIO/ClearIO.
type IO interface {
	Emit(socketID string, event string, payload []byte)
}

const (
	EventUpdate    = "update"
	EventEphemeral = "ephemeral"
)

type ClientType string

const (
	ClientUser    ClientType = "user-scoped"
	ClientSession ClientType = "session-scoped"
	ClientMachine ClientType = "machine-scoped"
)

// ConnDecl is what a socket declares at connect time. Membership is derived
// from it and is not persisted across connections; reconnecting clients
// re-declare.
type ConnDecl struct {
	AccountID  string     `json:"account_id"`
	ClientType ClientType `json:"client_type"`
	SessionID  string     `json:"session_id,omitempty"`
	MachineID  string     `json:"machine_id,omitempty"`
}

// Router owns socket room membership and delivers update/ephemeral payloads
// to exactly the room a RecipientFilter names. It never owns entity data and
// never inspects payload contents.
type Router struct {
	mu      sync.RWMutex
	io      IO
	rooms   map[string]map[string]struct{}
	sockets map[string][]string
	logger  *slog.Logger
}

func NewRouter() *Router {
	return &Router{
		rooms:   make(map[string]map[string]struct{}),
		sockets: make(map[string][]string),
		logger:  slog.Default().With("component", "realtime"),
	}
}

// SetIO installs the transport. Safe to call at any time; emissions while no
// transport is installed are dropped.
func (r *Router) SetIO(io IO) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.io = io
}

func (r *Router) ClearIO() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.io = nil
}

// Connect registers a socket and derives its rooms from the declaration.
// Every socket joins its account's personal room; session- and machine-scoped
// sockets additionally join the declared entity room.
func (r *Router) Connect(socketID string, decl ConnDecl) error {
	if decl.AccountID == "" {
		return errors.New("connect declaration missing account id")
	}
	rooms := []string{userRoom(decl.AccountID)}
	switch decl.ClientType {
	case ClientUser:
	case ClientSession:
		if decl.SessionID == "" {
			return errors.New("session-scoped declaration missing session id")
		}
		rooms = append(rooms, sessionRoom(decl.SessionID))
	case ClientMachine:
		if decl.MachineID == "" {
			return errors.New("machine-scoped declaration missing machine id")
		}
		rooms = append(rooms, machineRoom(decl.MachineID))
	default:
		return errors.New("unknown client type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range rooms {
		members, ok := r.rooms[room]
		if !ok {
			members = make(map[string]struct{})
			r.rooms[room] = members
		}
		members[socketID] = struct{}{}
	}
	r.sockets[socketID] = rooms
	return nil
}

// Disconnect removes the socket from all of its rooms.
func (r *Router) Disconnect(socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.sockets[socketID] {
		delete(r.rooms[room], socketID)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.sockets, socketID)
}

// EmitUpdate delivers a cursor-stamped update container to the filter's room.
// Delivery is fire-and-forget; reconnect plus cursor catch-up is the recovery
// path, not router-level retries.
func (r *Router) EmitUpdate(filter RecipientFilter, update *models.UpdateContainer) {
	payload, err := json.Marshal(update)
	if err != nil {
		r.logger.Error("failed to marshal update", "error", err)
		return
	}
	r.deliver(filter, EventUpdate, payload)
}

// EmitEphemeral delivers a transient payload. Ephemeral payloads carry no
// cursor and are lost if no socket is connected.
func (r *Router) EmitEphemeral(filter RecipientFilter, payload *models.EphemeralPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("failed to marshal ephemeral payload", "error", err)
		return
	}
	r.deliver(filter, EventEphemeral, data)
}

func (r *Router) deliver(filter RecipientFilter, event string, payload []byte) {
	room, err := filter.room()
	if err != nil {
		r.logger.Error("invalid recipient filter", "error", err)
		return
	}

	r.mu.RLock()
	io := r.io
	members := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		members = append(members, id)
	}
	r.mu.RUnlock()

	if io == nil {
		return
	}
	for _, id := range members {
		io.Emit(id, event, payload)
	}
}
