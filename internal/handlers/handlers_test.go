package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/auctionhouse/internal/auction"
	"github.com/abrezinsky/auctionhouse/internal/auth"
	"github.com/abrezinsky/auctionhouse/internal/handlers"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/repository"
	"github.com/abrezinsky/auctionhouse/internal/repository/mock"
	"github.com/abrezinsky/auctionhouse/internal/services"
	"github.com/abrezinsky/auctionhouse/internal/testutil"
	"github.com/abrezinsky/auctionhouse/internal/websocket"
)

// testSetup creates all the dependencies needed for testing handlers
type testSetup struct {
	repo       *repository.Repository
	store      *mock.Repository
	session    *auction.Session
	bidders    *services.BidderService
	router     chi.Router
	clock      *clockwork.FakeClock
	authCookie *http.Cookie
}

// newTestSetup wires the real stack on an in-memory repository. Storage
// errors can be injected through store.
func newTestSetup(t *testing.T) *testSetup {
	t.Helper()

	repo := testutil.NewTestRepository(t)
	store := mock.NewRepository(repo)
	log := logger.New()
	clock := clockwork.NewFakeClock()

	hub := websocket.New(log, clock, websocket.DefaultOptions())
	cfg := auction.DefaultConfig()
	cfg.TimerDuration = 30 * time.Second
	session := auction.NewSession(log, store, hub, clock, cfg)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(session.Close)

	lots := services.NewLotService(log, store, clock)
	bidders := services.NewBidderService(log, store, clock)
	settings := services.NewSettingsService(log, store)
	adminAuth := auth.New("test-password", clock, bidders)

	h := handlers.New(log, session, lots, bidders, settings, adminAuth, hub, nil, nil)

	token, _ := adminAuth.Login("test-password")
	return &testSetup{
		repo:       repo,
		store:      store,
		session:    session,
		bidders:    bidders,
		router:     h.Router(),
		clock:      clock,
		authCookie: &http.Cookie{Name: auth.CookieName, Value: token},
	}
}

type requestOption func(r *http.Request)

func asAdmin(ts *testSetup) requestOption {
	return func(r *http.Request) { r.AddCookie(ts.authCookie) }
}

func withToken(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func (ts *testSetup) do(t *testing.T, method, path string, body interface{}, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	return out
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

// bidderToken registers a bidder and returns its id and token
func (ts *testSetup) bidderToken(t *testing.T, name, ceiling string) (string, string) {
	t.Helper()
	acct := testutil.SeedBidder(t, ts.repo, name, ceiling)
	token, err := ts.bidders.IssueToken(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return acct.ID, token
}

func TestPublic_AuctionStatus(t *testing.T) {
	ts := newTestSetup(t)

	rr := ts.do(t, "GET", "/api/auction/status", nil)
	expectStatus(t, rr, http.StatusOK)
	body := decode(t, rr)
	if body["paused"] != false {
		t.Errorf("expected paused=false, got %v", body["paused"])
	}
	if _, ok := body["live"]; ok {
		t.Error("expected no live lot")
	}
}

func TestPublic_Lots(t *testing.T) {
	ts := newTestSetup(t)
	lot := testutil.SeedLot(t, ts.repo, "Rohit", "2000")
	testutil.SeedLot(t, ts.repo, "Bumrah", "1500")

	rr := ts.do(t, "GET", "/api/lots", nil)
	expectStatus(t, rr, http.StatusOK)
	if lots := decodeList(t, rr); len(lots) != 2 || lots[0]["name"] != "Rohit" {
		t.Errorf("expected two lots in creation order, got %v", lots)
	}

	rr = ts.do(t, "GET", "/api/lots?status=sold", nil)
	expectStatus(t, rr, http.StatusOK)
	if lots := decodeList(t, rr); len(lots) != 0 {
		t.Errorf("expected no sold lots, got %v", lots)
	}

	rr = ts.do(t, "GET", "/api/lots?status=nope", nil)
	expectStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, "GET", "/api/lots/"+lot.ID, nil)
	expectStatus(t, rr, http.StatusOK)
	if body := decode(t, rr); body["base_price"] != "2000" {
		t.Errorf("expected base price 2000, got %v", body["base_price"])
	}

	rr = ts.do(t, "GET", "/api/lots/missing", nil)
	expectStatus(t, rr, http.StatusNotFound)
	if body := decode(t, rr); body["code"] != handlers.ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", body["code"])
	}
}

func TestPublic_LotStatusAndBids(t *testing.T) {
	ts := newTestSetup(t)
	lot := testutil.SeedLot(t, ts.repo, "Rohit", "1000")
	_, token := ts.bidderToken(t, "Mumbai", "5000")

	expectStatus(t, ts.do(t, "POST", "/api/admin/lots/"+lot.ID+"/activate", nil, asAdmin(ts)), http.StatusOK)
	expectStatus(t, ts.do(t, "POST", "/api/bids", map[string]interface{}{"lot_id": lot.ID, "amount": 1000}, withToken(token)), http.StatusOK)

	rr := ts.do(t, "GET", "/api/lots/"+lot.ID+"/status", nil)
	expectStatus(t, rr, http.StatusOK)
	status := decode(t, rr)
	if status["status"] != "live" || status["highest_bid"] != "1000" || status["timer_running"] != true {
		t.Errorf("unexpected status %v", status)
	}
	if status["seconds_remaining"].(float64) != 30 {
		t.Errorf("expected a full countdown after the bid, got %v", status["seconds_remaining"])
	}

	rr = ts.do(t, "GET", "/api/lots/"+lot.ID+"/bids", nil)
	expectStatus(t, rr, http.StatusOK)
	if bids := decodeList(t, rr); len(bids) != 1 || bids[0]["is_winning"] != true {
		t.Errorf("expected one winning bid, got %v", bids)
	}

	rr = ts.do(t, "GET", "/api/rounds", nil)
	expectStatus(t, rr, http.StatusOK)
	if rounds := decodeList(t, rr); len(rounds) != 1 || rounds[0]["live"].(float64) != 1 {
		t.Errorf("expected one live lot in round 1, got %v", rounds)
	}
}

func TestPublic_StorageFailureIs503(t *testing.T) {
	ts := newTestSetup(t)
	ts.store.ListLotsError = context.DeadlineExceeded

	rr := ts.do(t, "GET", "/api/lots", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
	if body := decode(t, rr); body["code"] != handlers.ErrCodeStorage {
		t.Errorf("expected STORAGE_ERROR, got %v", body["code"])
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	ts := newTestSetup(t)

	req := httptest.NewRequest("OPTIONS", "/api/bids", nil)
	req.Header.Set("Origin", "https://board.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}
