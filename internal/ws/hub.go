package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/novapulse/pwa-bridge/internal/identity"
)

// ClientMessageFunc receives a routed end-user message from a live session.
type ClientMessageFunc func(ctx context.Context, id identity.Identity, text string)

// frame is the JSON envelope for every event in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sender interface {
	send(p []byte) error
}

type session struct {
	id       string
	out      sender
	identity identity.Identity
	room     string
}

// Hub is the live session registry: one session per WebSocket connection,
// grouped into rooms derived from the announced identity. Sessions are not
// persisted; a reconnecting client re-announces itself with init.
type Hub struct {
	log             *slog.Logger
	onClientMessage ClientMessageFunc

	mu       sync.RWMutex
	sessions map[string]*session
	rooms    map[string]map[string]*session
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		sessions: make(map[string]*session),
		rooms:    make(map[string]map[string]*session),
	}
}

// SetClientMessageHandler wires the router callback. Must be called before
// the hub starts accepting connections.
func (h *Hub) SetClientMessageHandler(fn ClientMessageFunc) {
	h.onClientMessage = fn
}

// HandleUpgrade upgrades the HTTP request and runs the connection's read
// loop until the peer goes away.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	connID := uuid.NewString()
	h.connect(connID, &connSender{conn: conn})
	h.log.Info("client connected", "conn", connID)

	go h.readLoop(connID, conn)
}

func (h *Hub) connect(connID string, out sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[connID] = &session{id: connID, out: out}
}

// Register binds an identity to a connection and joins its room, replacing
// any previous binding for the same connection. Returns the room key.
func (h *Hub) Register(connID string, id identity.Identity) string {
	room := id.RoomKey()

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[connID]
	if !ok {
		return room
	}
	if s.room != "" {
		h.leaveRoomLocked(s)
	}
	s.identity = id
	s.room = room
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*session)
		h.rooms[room] = members
	}
	members[connID] = s
	return room
}

func (h *Hub) IdentityOf(connID string) (identity.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[connID]
	if !ok || !s.identity.Valid() {
		return identity.Identity{}, false
	}
	return s.identity, true
}

// Unregister drops the session. Idempotent.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[connID]
	if !ok {
		return
	}
	h.leaveRoomLocked(s)
	delete(h.sessions, connID)
}

func (h *Hub) leaveRoomLocked(s *session) {
	if s.room == "" {
		return
	}
	if members, ok := h.rooms[s.room]; ok {
		delete(members, s.id)
		if len(members) == 0 {
			delete(h.rooms, s.room)
		}
	}
	s.room = ""
}

// Broadcast delivers an event to every session joined to room. An empty room
// is a no-op: events are not queued for future joiners.
func (h *Hub) Broadcast(room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("broadcast payload marshal failed", "event", event, "err", err)
		return
	}
	raw, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		h.log.Error("broadcast frame marshal failed", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	members := make([]*session, 0, len(h.rooms[room]))
	for _, s := range h.rooms[room] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	for _, s := range members {
		if err := s.out.send(raw); err != nil {
			h.log.Warn("broadcast send failed", "conn", s.id, "event", event, "err", err)
		}
	}
}

func (h *Hub) readLoop(connID string, conn net.Conn) {
	defer func() {
		conn.Close()
		h.Unregister(connID)
		h.log.Info("client disconnected", "conn", connID)
	}()

	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.log.Warn("malformed frame dropped", "conn", connID, "err", err)
			continue
		}

		switch f.Event {
		case "init":
			var init struct {
				Email      string `json:"email"`
				SellerSlug string `json:"sellerSlug"`
			}
			if err := json.Unmarshal(f.Data, &init); err != nil {
				h.log.Warn("malformed init dropped", "conn", connID, "err", err)
				continue
			}
			id := identity.Normalize(init.Email, init.SellerSlug)
			if !id.Valid() {
				h.log.Warn("init with invalid identity ignored", "conn", connID)
				continue
			}
			room := h.Register(connID, id)
			h.log.Info("client joined", "conn", connID, "room", room)

		case "client_message":
			var msg struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(f.Data, &msg); err != nil {
				continue
			}
			id, ok := h.IdentityOf(connID)
			if !ok || h.onClientMessage == nil {
				continue
			}
			h.onClientMessage(context.Background(), id, msg.Text)
		}
	}
}

// connSender serializes frame writes on one connection.
type connSender struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *connSender) send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteServerMessage(c.conn, ws.OpText, p)
}
