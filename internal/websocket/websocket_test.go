package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
)

func newTestHub(opts Options) (*Hub, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return New(logger.New(), clock, opts), clock
}

func event(t models.EventType, payload interface{}) models.Event {
	return models.NewEvent(t, payload, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}

// drain returns everything queued for a connection without blocking
func drain(c *Conn) []models.Event {
	var out []models.Event
	for {
		select {
		case ev, ok := <-c.out.ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func types(evs []models.Event) []models.EventType {
	out := make([]models.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func mustRegister(t *testing.T, h *Hub, identity *models.Identity) *Conn {
	t.Helper()
	c, err := h.Register(identity)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return c
}

type recordingMirror struct {
	mu     sync.Mutex
	events []models.Event
}

func (m *recordingMirror) Publish(ev models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

type staticIdentifier struct {
	identity models.Identity
	err      error
}

func (s staticIdentifier) Identify(r *http.Request) (models.Identity, error) {
	return s.identity, s.err
}

func TestNew_CreatesHubWithDependencies(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())

	if hub.log == nil {
		t.Error("expected logger to be set")
	}
	if hub.clock == nil {
		t.Error("expected clock to be set")
	}
	if hub.conns == nil || hub.rooms == nil {
		t.Error("expected maps to be initialized")
	}
	if hub.opts.QueueSize != 256 {
		t.Errorf("expected queue size 256, got %d", hub.opts.QueueSize)
	}
}

func TestHub_RegisterGreetsBeforeBroadcasts(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	hub.SetGreeter(func() []models.Event {
		return []models.Event{event(models.EventAuctionStatus, map[string]bool{"paused": false})}
	})

	c := mustRegister(t, hub, nil)
	hub.Broadcast(event(models.EventBidPlaced, nil))

	got := types(drain(c))
	want := []models.EventType{models.EventConnected, models.EventAuctionStatus, models.EventBidPlaced}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestHub_BroadcastPreservesOrderPerConnection(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	a := mustRegister(t, hub, nil)
	b := mustRegister(t, hub, nil)
	drain(a)
	drain(b)

	for i := 0; i < 50; i++ {
		hub.Broadcast(event(models.EventTimerUpdate, i))
	}

	for _, c := range []*Conn{a, b} {
		evs := drain(c)
		if len(evs) != 50 {
			t.Fatalf("expected 50 events, got %d", len(evs))
		}
		for i, ev := range evs {
			if ev.Payload.(int) != i {
				t.Fatalf("event %d out of order: payload %v", i, ev.Payload)
			}
		}
	}
}

func TestHub_BroadcastExcludes(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	a := mustRegister(t, hub, nil)
	b := mustRegister(t, hub, nil)
	drain(a)
	drain(b)

	hub.Broadcast(event(models.EventBidPlaced, nil), a.ID())

	if n := len(drain(a)); n != 0 {
		t.Errorf("excluded connection received %d events", n)
	}
	if n := len(drain(b)); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}
}

func TestHub_RoomsAndAutoJoin(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	bidder := mustRegister(t, hub, &models.Identity{Role: models.RoleBidder, BidderID: "b1"})
	admin := mustRegister(t, hub, &models.Identity{Role: models.RoleAdmin})
	spectator := mustRegister(t, hub, nil)
	drain(bidder)
	drain(admin)
	drain(spectator)

	hub.BroadcastToRoom(models.BidderRoom("b1"), event(models.EventOutbid, nil))
	hub.BroadcastToRoom(AdminRoom, event(models.EventAuctionStatus, nil))

	if got := types(drain(bidder)); len(got) != 1 || got[0] != models.EventOutbid {
		t.Errorf("bidder expected [outbid], got %v", got)
	}
	if got := types(drain(admin)); len(got) != 1 || got[0] != models.EventAuctionStatus {
		t.Errorf("admin expected [auction_status], got %v", got)
	}
	if n := len(drain(spectator)); n != 0 {
		t.Errorf("spectator received %d room events", n)
	}

	if err := hub.JoinRoom(spectator.ID(), "lot:42"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	hub.BroadcastToRoom("lot:42", event(models.EventTimerUpdate, nil))
	if n := len(drain(spectator)); n != 1 {
		t.Errorf("expected 1 room event, got %d", n)
	}

	if err := hub.LeaveRoom(spectator.ID(), "lot:42"); err != nil {
		t.Fatalf("LeaveRoom failed: %v", err)
	}
	hub.BroadcastToRoom("lot:42", event(models.EventTimerUpdate, nil))
	if n := len(drain(spectator)); n != 0 {
		t.Errorf("expected no events after leaving, got %d", n)
	}
	if _, ok := hub.Stats().Rooms["lot:42"]; ok {
		t.Error("expected empty room to be removed")
	}
}

func TestHub_JoinRoomUnknownConnection(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())

	if err := hub.JoinRoom("nope", "x"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := hub.LeaveRoom("nope", "x"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHub_UnregisterCleansUp(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	c := mustRegister(t, hub, &models.Identity{Role: models.RoleBidder, BidderID: "b1"})

	hub.Unregister(c)
	hub.Unregister(c)

	stats := hub.Stats()
	if stats.Connections != 0 {
		t.Errorf("expected 0 connections, got %d", stats.Connections)
	}
	if len(stats.Rooms) != 0 {
		t.Errorf("expected no rooms, got %v", stats.Rooms)
	}
	if c.out.push(event(models.EventBidPlaced, nil)) {
		t.Error("expected closed outbox to refuse events")
	}
}

func TestHub_SlowConsumerDropsOldest(t *testing.T) {
	hub, _ := newTestHub(Options{QueueSize: 3, HeartbeatInterval: time.Second})
	c := mustRegister(t, hub, nil)
	drain(c)

	for i := 0; i < 5; i++ {
		hub.Broadcast(event(models.EventTimerUpdate, i))
	}

	evs := drain(c)
	if len(evs) != 3 {
		t.Fatalf("expected 3 queued events, got %d", len(evs))
	}
	for i, ev := range evs {
		if ev.Payload.(int) != i+2 {
			t.Errorf("expected newest events to survive, got payload %v at %d", ev.Payload, i)
		}
	}
	if got := hub.Stats().Dropped; got != 2 {
		t.Errorf("expected 2 dropped, got %d", got)
	}

	hub.Unregister(c)
	if got := hub.Stats().Dropped; got != 2 {
		t.Errorf("expected dropped count to survive unregister, got %d", got)
	}
}

func TestHub_MaxConnections(t *testing.T) {
	hub, _ := newTestHub(Options{QueueSize: 8, HeartbeatInterval: time.Second, MaxConnections: 1})
	mustRegister(t, hub, nil)

	_, err := hub.Register(nil)
	if !errors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestHub_SweepEvictsOnTheCycleAfterAMissedPing(t *testing.T) {
	hub, clock := newTestHub(Options{QueueSize: 8, HeartbeatInterval: 10 * time.Second})
	silent := mustRegister(t, hub, nil)
	alive := mustRegister(t, hub, nil)

	hub.sweep()
	for _, c := range []*Conn{silent, alive} {
		select {
		case <-c.ping:
		default:
			t.Fatalf("expected %s to be pinged", c.ID())
		}
	}
	if got := hub.Stats().Connections; got != 2 {
		t.Fatalf("expected nobody evicted on the first sweep, got %d connections", got)
	}

	// Only one of them answers
	clock.Advance(time.Second)
	alive.touch(clock.Now())
	clock.Advance(9 * time.Second)

	hub.sweep()

	stats := hub.Stats()
	if stats.Connections != 1 {
		t.Fatalf("expected 1 connection, got %d", stats.Connections)
	}
	if stats.Evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", stats.Evicted)
	}
	if _, ok := hub.conns[silent.ID()]; ok {
		t.Error("expected silent connection to be evicted")
	}
	select {
	case <-alive.ping:
	default:
		t.Error("expected the live connection to be pinged again")
	}
}

func TestHub_RunHeartbeatTicksAndStops(t *testing.T) {
	hub, clock := newTestHub(Options{QueueSize: 8, HeartbeatInterval: time.Second})
	c := mustRegister(t, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.RunHeartbeat(ctx)
		close(done)
	}()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("heartbeat never started: %v", err)
	}
	clock.Advance(time.Second)

	select {
	case <-c.ping:
	case <-time.After(2 * time.Second):
		t.Error("expected a ping after one interval")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunHeartbeat did not return after cancel")
	}
}

func TestHub_MirrorSeesBroadcastsOnly(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	mirror := &recordingMirror{}
	hub.SetMirror(mirror)

	hub.Broadcast(event(models.EventLotSold, nil))
	hub.BroadcastToRoom(models.BidderRoom("b1"), event(models.EventOutbid, nil))

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.events) != 1 || mirror.events[0].Type != models.EventLotSold {
		t.Errorf("expected mirror to see [lot_sold], got %v", types(mirror.events))
	}
}

func TestConn_HandleRefusesPrivateRooms(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	c := mustRegister(t, hub, nil)

	c.handle(inbound{Type: "join", Room: models.BidderRoom("b1")})
	c.handle(inbound{Type: "join", Room: AdminRoom})
	c.handle(inbound{Type: "join", Room: ""})
	c.handle(inbound{Type: "join", Room: "lot:1"})

	rooms := hub.Stats().Rooms
	if len(rooms) != 1 || rooms["lot:1"] != 1 {
		t.Errorf("expected only lot:1 to be joined, got %v", rooms)
	}

	c.handle(inbound{Type: "leave", Room: "lot:1"})
	if len(hub.Stats().Rooms) != 0 {
		t.Errorf("expected no rooms after leave, got %v", hub.Stats().Rooms)
	}
}

func TestConn_BidderKeepsOwnRoom(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	c := mustRegister(t, hub, &models.Identity{Role: models.RoleBidder, BidderID: "b1"})

	c.handle(inbound{Type: "leave", Room: models.BidderRoom("b1")})

	if got := hub.Stats().Rooms[models.BidderRoom("b1")]; got != 1 {
		t.Errorf("expected the bidder to stay in its room, got %d members", got)
	}
	hub.BroadcastToRoom(models.BidderRoom("b1"), event(models.EventOutbid, nil))
	if got := types(drain(c)); got[len(got)-1] != models.EventOutbid {
		t.Errorf("expected outbid to arrive, got %v", got)
	}
}

func TestHub_JoinRoomIsCapped(t *testing.T) {
	hub, _ := newTestHub(DefaultOptions())
	c := mustRegister(t, hub, nil)

	for i := 0; i < maxRooms; i++ {
		if err := hub.JoinRoom(c.ID(), fmt.Sprintf("lot:%d", i)); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}
	if err := hub.JoinRoom(c.ID(), "lot:extra"); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("expected Conflict past the cap, got %v", err)
	}
	if err := hub.JoinRoom(c.ID(), "lot:0"); err != nil {
		t.Errorf("expected rejoining a room to succeed, got %v", err)
	}

	c.handle(inbound{Type: "join", Room: "lot:other"})
	if _, ok := hub.Stats().Rooms["lot:other"]; ok {
		t.Error("expected a join past the cap to be refused")
	}
	if got := len(hub.Stats().Rooms); got != maxRooms {
		t.Errorf("expected %d rooms, got %d", maxRooms, got)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid json %q: %v", data, err)
	}
	return msg
}

func waitForConnections(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Stats().Connections == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d connections, got %d", n, hub.Stats().Connections)
}

func TestServeWs_GreetsAndBroadcasts(t *testing.T) {
	hub := New(logger.New(), clockwork.NewRealClock(), DefaultOptions())
	hub.SetGreeter(func() []models.Event {
		return []models.Event{models.NewEvent(models.EventAuctionStatus, map[string]bool{"paused": true}, time.Now())}
	})

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	url := "ws" + server.URL[4:]
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer ws.Close()

	if msg := readEvent(t, ws); msg["type"] != string(models.EventConnected) {
		t.Errorf("expected connected first, got %v", msg["type"])
	}
	msg := readEvent(t, ws)
	if msg["type"] != string(models.EventAuctionStatus) {
		t.Errorf("expected auction_status second, got %v", msg["type"])
	}
	if _, err := time.Parse(time.RFC3339, msg["timestamp"].(string)); err != nil {
		t.Errorf("expected RFC 3339 timestamp, got %v", msg["timestamp"])
	}

	hub.Broadcast(models.NewEvent(models.EventBidPlaced, map[string]string{"lot_id": "l1"}, time.Now()))
	msg = readEvent(t, ws)
	if msg["type"] != string(models.EventBidPlaced) {
		t.Errorf("expected bid_placed, got %v", msg["type"])
	}
	payload := msg["payload"].(map[string]interface{})
	if payload["lot_id"] != "l1" {
		t.Errorf("expected lot_id l1, got %v", payload["lot_id"])
	}

	ws.Close()
	waitForConnections(t, hub, 0)
}

func TestServeWs_BidderJoinsOwnRoom(t *testing.T) {
	hub := New(logger.New(), clockwork.NewRealClock(), DefaultOptions())
	hub.SetIdentifier(staticIdentifier{identity: models.Identity{Role: models.RoleBidder, BidderID: "b7"}})

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer ws.Close()

	greeting := readEvent(t, ws)
	payload := greeting["payload"].(map[string]interface{})
	identity := payload["identity"].(map[string]interface{})
	if identity["bidder_id"] != "b7" {
		t.Errorf("expected bidder b7 in greeting, got %v", identity)
	}

	hub.BroadcastToRoom(models.BidderRoom("b7"), models.NewEvent(models.EventOutbid, nil, time.Now()))
	if msg := readEvent(t, ws); msg["type"] != string(models.EventOutbid) {
		t.Errorf("expected outbid, got %v", msg["type"])
	}
	if got := hub.Stats().Identified; got != 1 {
		t.Errorf("expected 1 identified connection, got %d", got)
	}
}

func TestServeWs_JoinMessage(t *testing.T) {
	hub := New(logger.New(), clockwork.NewRealClock(), DefaultOptions())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer ws.Close()
	readEvent(t, ws)

	if err := ws.WriteJSON(map[string]string{"type": "join", "room": "lot:9"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Rooms["lot:9"] != 1 {
		if time.Now().After(deadline) {
			t.Fatal("connection never joined lot:9")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastToRoom("lot:9", models.NewEvent(models.EventTimerUpdate, 5, time.Now()))
	if msg := readEvent(t, ws); msg["type"] != string(models.EventTimerUpdate) {
		t.Errorf("expected timer_update, got %v", msg["type"])
	}
}

func TestServeWs_RejectsOverLimit(t *testing.T) {
	hub := New(logger.New(), clockwork.NewRealClock(), Options{QueueSize: 8, HeartbeatInterval: time.Second, MaxConnections: 1})
	mustRegister(t, hub, nil)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", resp)
	}
}

func waitForRoom(t *testing.T, hub *Hub, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Rooms[room] != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d members in %s, got %d", n, room, hub.Stats().Rooms[room])
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeWs_FailedConnectionDoesNotBlockOthers(t *testing.T) {
	hub := New(logger.New(), clockwork.NewRealClock(), DefaultOptions())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()
	url := "ws" + server.URL[4:]

	broken, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer broken.Close()
	readEvent(t, broken)
	waitForConnections(t, hub, 1)

	hub.mu.Lock()
	var serverSide *Conn
	for _, c := range hub.conns {
		serverSide = c
	}
	hub.mu.Unlock()

	healthy, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer healthy.Close()
	readEvent(t, healthy)
	waitForConnections(t, hub, 2)

	for _, ws := range []*websocket.Conn{broken, healthy} {
		if err := ws.WriteJSON(map[string]string{"type": "join", "room": "lot:1"}); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	waitForRoom(t, hub, "lot:1", 2)

	// Writes to the broken peer now fail while its reads still block
	tcp, ok := serverSide.ws.UnderlyingConn().(*net.TCPConn)
	if !ok {
		t.Fatalf("expected a TCP connection, got %T", serverSide.ws.UnderlyingConn())
	}
	if err := tcp.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite failed: %v", err)
	}

	const total = 21
	for i := 0; i < total-1; i++ {
		hub.Broadcast(models.NewEvent(models.EventTimerUpdate, i, time.Now()))
	}
	hub.BroadcastToRoom("lot:1", models.NewEvent(models.EventBidPlaced, nil, time.Now()))

	for i := 0; i < total-1; i++ {
		msg := readEvent(t, healthy)
		if msg["type"] != string(models.EventTimerUpdate) || msg["payload"] != float64(i) {
			t.Fatalf("event %d: expected timer_update %d, got %v %v", i, i, msg["type"], msg["payload"])
		}
	}
	if msg := readEvent(t, healthy); msg["type"] != string(models.EventBidPlaced) {
		t.Errorf("expected bid_placed last, got %v", msg["type"])
	}

	waitForConnections(t, hub, 1)
	waitForRoom(t, hub, "lot:1", 1)
	if got := hub.Stats().Evicted; got != 1 {
		t.Errorf("expected the broken connection to be evicted, got %d evictions", got)
	}
}
