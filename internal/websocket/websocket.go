package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096

	// maxRooms bounds how many rooms one connection may be in
	maxRooms = 16

	// AdminRoom is joined by every admin connection
	AdminRoom = "admins"
)

var errNoHeartbeat = stderrors.New("no reply to the last heartbeat ping")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Origins are enforced by the CORS layer in front of the API
	},
}

// Identifier resolves who opened a connection. Anonymous spectators are
// allowed, so an error just means no identity.
type Identifier interface {
	Identify(r *http.Request) (models.Identity, error)
}

// Mirror receives a copy of every broadcast event
type Mirror interface {
	Publish(ev models.Event)
}

// Options configures the hub
type Options struct {
	QueueSize         int
	HeartbeatInterval time.Duration
	MaxConnections    int
}

// DefaultOptions mirrors the stock configuration
func DefaultOptions() Options {
	return Options{
		QueueSize:         256,
		HeartbeatInterval: 30 * time.Second,
		MaxConnections:    1000,
	}
}

// Stats describes the hub's current population
type Stats struct {
	Connections int            `json:"connections"`
	Identified  int            `json:"identified"`
	Rooms       map[string]int `json:"rooms"`
	Dropped     uint64         `json:"dropped_messages"`
	Evicted     uint64         `json:"evicted"`
}

// Hub maintains the set of active connections and fans events out to them
type Hub struct {
	log   logger.Logger
	clock clockwork.Clock
	opts  Options

	mu    sync.Mutex
	conns map[string]*Conn
	rooms map[string]map[string]*Conn

	greeter    func() []models.Event
	mirror     Mirror
	identifier Identifier

	droppedGone atomic.Uint64
	evicted     atomic.Uint64
}

// Conn is one observer. Events reach it through its outbox in the order
// they were broadcast.
type Conn struct {
	id       string
	identity *models.Identity
	hub      *Hub
	ws       *websocket.Conn
	out      *outbox
	ping     chan struct{}
	lastSeen atomic.Int64
	pingedAt atomic.Int64
	rooms    map[string]struct{} // guarded by hub.mu
}

// ID returns the connection id
func (c *Conn) ID() string {
	return c.id
}

// Identity returns the identity the connection was opened with, if any
func (c *Conn) Identity() *models.Identity {
	return c.identity
}

func (c *Conn) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

func (c *Conn) seen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// New creates a new Hub instance with injected dependencies
func New(log logger.Logger, clock clockwork.Clock, opts Options) *Hub {
	return &Hub{
		log:   log,
		clock: clock,
		opts:  opts,
		conns: make(map[string]*Conn),
		rooms: make(map[string]map[string]*Conn),
	}
}

// SetGreeter sets the events a new connection receives after `connected`
func (h *Hub) SetGreeter(fn func() []models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.greeter = fn
}

// SetMirror sets a sink that sees every broadcast event
func (h *Hub) SetMirror(m Mirror) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mirror = m
}

// SetIdentifier sets how upgrade requests are identified
func (h *Hub) SetIdentifier(id Identifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.identifier = id
}

// Register adds a connection. Bidders join their own room and admins the
// admin room. The connection is greeted before it can see any broadcast.
func (h *Hub) Register(identity *models.Identity) (*Conn, error) {
	return h.register(identity, nil)
}

func (h *Hub) register(identity *models.Identity, ws *websocket.Conn) (*Conn, error) {
	c := &Conn{
		id:       uuid.NewString(),
		identity: identity,
		hub:      h,
		ws:       ws,
		out:      newOutbox(h.opts.QueueSize),
		ping:     make(chan struct{}, 1),
		rooms:    make(map[string]struct{}),
	}
	c.touch(h.clock.Now())

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.MaxConnections > 0 && len(h.conns) >= h.opts.MaxConnections {
		return nil, errors.Conflictf("connection limit of %d reached", h.opts.MaxConnections)
	}
	h.conns[c.id] = c
	if identity != nil {
		switch identity.Role {
		case models.RoleBidder:
			h.joinLocked(c, models.BidderRoom(identity.BidderID))
		case models.RoleAdmin:
			h.joinLocked(c, AdminRoom)
		}
	}

	c.out.push(models.NewEvent(models.EventConnected, map[string]interface{}{
		"connection_id": c.id,
		"identity":      identity,
	}, h.clock.Now()))
	if h.greeter != nil {
		for _, ev := range h.greeter() {
			c.out.push(ev)
		}
	}

	h.log.Debug("Client connected", "connection_id", c.id, "total_clients", len(h.conns))
	return c, nil
}

// Unregister removes a connection and its room memberships
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	if h.conns[c.id] != c {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	total := len(h.conns)
	h.mu.Unlock()

	h.droppedGone.Add(c.out.droppedCount())
	c.out.close()
	h.log.Debug("Client disconnected", "connection_id", c.id, "total_clients", total)
}

// evict unregisters a connection and tears down its transport
func (h *Hub) evict(c *Conn, cause error) {
	h.log.Warn("Evicting connection", "connection_id", c.id, "error", cause)
	h.evicted.Add(1)
	h.Unregister(c)
	if c.ws != nil {
		c.ws.Close()
	}
}

// JoinRoom adds a connection to a room
func (h *Hub) JoinRoom(connID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return errors.NotFoundf("connection %s not found", connID)
	}
	if _, in := c.rooms[room]; !in && len(c.rooms) >= maxRooms {
		return errors.Conflictf("connection %s is already in %d rooms", connID, maxRooms)
	}
	h.joinLocked(c, room)
	return nil
}

// LeaveRoom removes a connection from a room
func (h *Hub) LeaveRoom(connID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return errors.NotFoundf("connection %s not found", connID)
	}
	h.leaveLocked(c, room)
	return nil
}

func (h *Hub) joinLocked(c *Conn, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[c.id] = c
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Conn, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast delivers ev to every connection except the excluded ids
func (h *Hub) Broadcast(ev models.Event, exclude ...string) {
	h.mu.Lock()
	mirror := h.mirror
	for id, c := range h.conns {
		if contains(exclude, id) {
			continue
		}
		c.out.push(ev)
	}
	h.mu.Unlock()

	if mirror != nil {
		mirror.Publish(ev)
	}
}

// BroadcastToRoom delivers ev to the members of a room
func (h *Hub) BroadcastToRoom(room string, ev models.Event) {
	h.mu.Lock()
	for _, c := range h.rooms[room] {
		c.out.push(ev)
	}
	h.mu.Unlock()
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (h *Hub) full() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts.MaxConnections > 0 && len(h.conns) >= h.opts.MaxConnections
}

// Stats returns connection and room counts
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{
		Connections: len(h.conns),
		Rooms:       make(map[string]int, len(h.rooms)),
		Dropped:     h.droppedGone.Load(),
		Evicted:     h.evicted.Load(),
	}
	for _, c := range h.conns {
		if c.identity != nil {
			s.Identified++
		}
		s.Dropped += c.out.droppedCount()
	}
	for room, members := range h.rooms {
		s.Rooms[room] = len(members)
	}
	return s
}

// RunHeartbeat pings every connection each interval and evicts those that
// have not been heard from since the previous ping. It returns when ctx is
// done.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := h.clock.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Heartbeat stopped")
			return
		case <-ticker.Chan():
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	now := h.clock.Now()

	var stale []*Conn
	h.mu.Lock()
	for _, c := range h.conns {
		if pinged := c.pingedAt.Load(); pinged != 0 && c.seen().Before(time.Unix(0, pinged)) {
			stale = append(stale, c)
			continue
		}
		c.pingedAt.Store(now.UnixNano())
		select {
		case c.ping <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.evict(c, errors.Connection(errNoHeartbeat))
	}
}

// inbound is what clients may send
type inbound struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

// readPump pumps messages from the websocket connection to the hub
func (c *Conn) readPump() {
	defer c.hub.Unregister(c)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetPongHandler(func(string) error {
		c.touch(c.hub.clock.Now())
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "connection_id", c.id, "error", err)
			}
			return
		}
		c.touch(c.hub.clock.Now())

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Debug("Ignoring malformed message", "connection_id", c.id)
			continue
		}
		c.handle(msg)
	}
}

// handle processes client requests. Bidder and admin rooms follow the
// connection's identity and cannot be joined or left by hand.
func (c *Conn) handle(msg inbound) {
	switch msg.Type {
	case "ping":
	case "join":
		if privateRoom(msg.Room) {
			return
		}
		if err := c.hub.JoinRoom(c.id, msg.Room); err != nil {
			c.hub.log.Debug("Join refused", "connection_id", c.id, "room", msg.Room, "error", err)
		}
	case "leave":
		if privateRoom(msg.Room) {
			return
		}
		if err := c.hub.LeaveRoom(c.id, msg.Room); err != nil {
			c.hub.log.Debug("Leave refused", "connection_id", c.id, "room", msg.Room, "error", err)
		}
	default:
		c.hub.log.Debug("Received message", "connection_id", c.id, "type", msg.Type)
	}
}

func privateRoom(room string) bool {
	return room == "" || room == AdminRoom || strings.HasPrefix(room, models.BidderRoom(""))
}

// writePump pumps events and heartbeat pings to the websocket connection
func (c *Conn) writePump() {
	defer c.ws.Close()

	for {
		select {
		case ev, ok := <-c.out.ch:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the outbox
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				c.hub.evict(c, errors.Connection(err))
				return
			}

		case <-c.ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.hub.evict(c, errors.Connection(err))
				return
			}
		}
	}
}

// ServeWs handles websocket requests from clients
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	identifier := h.identifier
	h.mu.Unlock()

	var identity *models.Identity
	if identifier != nil {
		if id, err := identifier.Identify(r); err == nil {
			identity = &id
		}
	}

	if h.full() {
		h.log.Warn("WebSocket rejected", "reason", "connection limit")
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		return
	}

	c, err := h.register(identity, ws)
	if err != nil {
		h.log.Warn("WebSocket rejected", "error", err)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(writeWait))
		ws.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go c.writePump()
	go c.readPump()
}
