// Package auction runs the live auction: one lot at a time, bids serialized
// through a single command loop, and a countdown that closes the lot.
//
// Every state change goes through the session's inbox and is handled by one
// goroutine. Handlers validate first, persist second and apply last, so a
// failure at any step leaves the lot, the ledger and the timer untouched.
// Timer expiry arrives as a TimerExpired message on the same inbox as a
// manual close, which makes the close transition happen at most once.
package auction

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/countdown"
	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/ledger"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

const inboxSize = 64

// Config holds the bid policy and the countdown length
type Config struct {
	BidIncrement    decimal.Decimal
	TimerDuration   time.Duration
	AllowSelfOutbid bool
}

// DefaultConfig returns the stock policy: increment 50, 30 second countdown
func DefaultConfig() Config {
	return Config{
		BidIncrement:  decimal.NewFromInt(50),
		TimerDuration: 30 * time.Second,
	}
}

// CloseReason tells how a lot left the Live state
type CloseReason string

const (
	CloseManual    CloseReason = "manual"
	CloseExpired   CloseReason = "timer_expired"
	CloseWithdrawn CloseReason = "withdrawn"
)

// TimerExpired is posted to the session when the countdown of a lot reaches
// zero. Generation identifies the countdown so a superseded one is ignored.
type TimerExpired struct {
	LotID      string
	Generation uint64
}

// BidResult describes an accepted bid
type BidResult struct {
	Bid models.BidRecord   `json:"bid"`
	Lot models.LotSnapshot `json:"status"`
}

// CloseResult describes the outcome of a close request
type CloseResult struct {
	Lot           models.Lot  `json:"lot"`
	Reason        CloseReason `json:"reason"`
	AlreadyClosed bool        `json:"already_closed"`
}

type placeBidCmd struct {
	lotID    string
	bidderID string
	amount   decimal.Decimal
}

type activateCmd struct{ lotID string }

type activateNextCmd struct{}

type closeCmd struct {
	lotID  string
	reason CloseReason
}

type newRoundCmd struct{}

type pauseCmd struct{ paused bool }

type envelope struct {
	ctx   context.Context
	msg   interface{}
	reply chan reply
}

type reply struct {
	val interface{}
	err error
}

// Session owns the live lot, the budget ledger and the countdown of one
// auction instance.
type Session struct {
	log   logger.Logger
	store repository.AuctionStore
	hub   Broadcaster
	clock clockwork.Clock
	cfg   Config

	ledger *ledger.Ledger
	timer  *countdown.Coordinator

	inbox     chan envelope
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	// mu guards the fields read outside the command loop
	mu     sync.RWMutex
	live   *models.Lot
	paused bool
}

var errSessionClosed = errors.Internalf("auction session is closed")

// NewSession creates a session. Nothing runs until Start.
func NewSession(log logger.Logger, store repository.AuctionStore, hub Broadcaster, clock clockwork.Clock, cfg Config) *Session {
	s := &Session{
		log:    log,
		store:  store,
		hub:    hub,
		clock:  clock,
		cfg:    cfg,
		ledger: ledger.New(),
		inbox:  make(chan envelope, inboxSize),
		done:   make(chan struct{}),
	}
	s.timer = countdown.New(log, clock, s)
	return s
}

// Start re-adopts a lot left Live in storage and starts the command loop
func (s *Session) Start(ctx context.Context) error {
	var err error
	started := false
	s.startOnce.Do(func() {
		started = true
		if err = s.recover(ctx); err != nil {
			return
		}
		s.wg.Add(1)
		go s.loop()
	})
	if !started {
		return errors.Internalf("auction session already started")
	}
	return err
}

// Close stops the command loop and the countdown
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.timer.Close()
	})
}

// Ledger exposes the in-memory budgets for read-only use
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case env := <-s.inbox:
			val, err := s.dispatch(env.ctx, env.msg)
			if env.reply != nil {
				env.reply <- reply{val: val, err: err}
			}
		}
	}
}

func (s *Session) dispatch(ctx context.Context, msg interface{}) (interface{}, error) {
	switch m := msg.(type) {
	case placeBidCmd:
		return s.handlePlaceBid(ctx, m)
	case activateCmd:
		return s.handleActivate(ctx, m.lotID)
	case activateNextCmd:
		return s.handleActivateNext(ctx)
	case closeCmd:
		return s.handleClose(ctx, m.lotID, m.reason, 0)
	case TimerExpired:
		_, err := s.handleClose(ctx, m.LotID, CloseExpired, m.Generation)
		if err != nil {
			s.log.Error("Failed to close lot on timer expiry", "lot_id", m.LotID, "error", err)
		}
		return nil, nil
	case newRoundCmd:
		return s.handleNewRound(ctx)
	case pauseCmd:
		return s.handlePause(m.paused), nil
	default:
		return nil, errors.Internalf("unknown auction command %T", msg)
	}
}

// send posts a command and waits for its reply. A command already taken by
// the loop runs to completion even if ctx ends first.
func (s *Session) send(ctx context.Context, msg interface{}) (interface{}, error) {
	env := envelope{ctx: ctx, msg: msg, reply: make(chan reply, 1)}
	select {
	case s.inbox <- env:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errSessionClosed
	}
	select {
	case r := <-env.reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errSessionClosed
	}
}

// PlaceBid submits a bid for the live lot
func (s *Session) PlaceBid(ctx context.Context, lotID, bidderID string, amount decimal.Decimal) (*BidResult, error) {
	if lotID == "" {
		return nil, errors.Validation("lot id is required")
	}
	if bidderID == "" {
		return nil, errors.Unauthorized("bidder identity is required")
	}
	if !amount.IsPositive() {
		return nil, errors.Validationf("bid amount must be positive, got %s", amount)
	}
	val, err := s.send(ctx, placeBidCmd{lotID: lotID, bidderID: bidderID, amount: amount})
	if err != nil {
		return nil, err
	}
	return val.(*BidResult), nil
}

// ActivateLot puts an available lot up for bidding and starts its countdown
func (s *Session) ActivateLot(ctx context.Context, lotID string) (*models.LotSnapshot, error) {
	val, err := s.send(ctx, activateCmd{lotID: lotID})
	if err != nil {
		return nil, err
	}
	return val.(*models.LotSnapshot), nil
}

// ActivateNext activates the first approved available lot
func (s *Session) ActivateNext(ctx context.Context) (*models.LotSnapshot, error) {
	val, err := s.send(ctx, activateNextCmd{})
	if err != nil {
		return nil, err
	}
	return val.(*models.LotSnapshot), nil
}

// CloseLot ends the live lot as Sold or Unsold. Closing a lot that already
// closed reports AlreadyClosed instead of failing.
func (s *Session) CloseLot(ctx context.Context, lotID string) (*CloseResult, error) {
	val, err := s.send(ctx, closeCmd{lotID: lotID, reason: CloseManual})
	if err != nil {
		return nil, err
	}
	return val.(*CloseResult), nil
}

// WithdrawLot ends the live lot as Unsold even when it has a bid. The
// reservation of the highest bidder is released.
func (s *Session) WithdrawLot(ctx context.Context, lotID string) (*CloseResult, error) {
	val, err := s.send(ctx, closeCmd{lotID: lotID, reason: CloseWithdrawn})
	if err != nil {
		return nil, err
	}
	return val.(*CloseResult), nil
}

// StartNewRound re-offers every unsold lot in the next round
func (s *Session) StartNewRound(ctx context.Context) ([]models.Lot, error) {
	val, err := s.send(ctx, newRoundCmd{})
	if err != nil {
		return nil, err
	}
	return val.([]models.Lot), nil
}

// Pause stops the countdown of the live lot and rejects new activations
func (s *Session) Pause(ctx context.Context) (*Status, error) {
	val, err := s.send(ctx, pauseCmd{paused: true})
	if err != nil {
		return nil, err
	}
	return val.(*Status), nil
}

// Resume restarts the countdown of the live lot from the full duration
func (s *Session) Resume(ctx context.Context) (*Status, error) {
	val, err := s.send(ctx, pauseCmd{paused: false})
	if err != nil {
		return nil, err
	}
	return val.(*Status), nil
}

// TimerTick implements countdown.Listener
func (s *Session) TimerTick(lotID string, remaining int) {
	s.hub.Broadcast(s.event(models.EventTimerUpdate, TimerUpdate{LotID: lotID, SecondsRemaining: remaining}))
}

// TimerExpired implements countdown.Listener. The close itself happens on
// the command loop.
func (s *Session) TimerExpired(lotID string, generation uint64) {
	env := envelope{ctx: context.Background(), msg: TimerExpired{LotID: lotID, Generation: generation}}
	select {
	case s.inbox <- env:
	case <-s.done:
	}
}

func (s *Session) event(t models.EventType, payload interface{}) models.Event {
	return models.NewEvent(t, payload, s.clock.Now())
}

func (s *Session) current() *models.Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// setLive replaces the live lot. The stored lot is never mutated in place.
func (s *Session) setLive(lot *models.Lot) {
	s.mu.Lock()
	s.live = lot
	s.mu.Unlock()
}

func (s *Session) isPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func (s *Session) loadLot(ctx context.Context, lotID string) (*models.Lot, error) {
	lot, err := s.store.LoadLotByID(ctx, lotID)
	if err == repository.ErrNotFound {
		return nil, errors.NotFoundf("lot %s not found", lotID)
	}
	if err != nil {
		return nil, storageError(err, "load lot")
	}
	return lot, nil
}

// storageError keeps application errors and marks everything else as a
// persistence failure
func storageError(err error, action string) error {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.Storage(err, "failed to "+action)
}

func (s *Session) broadcastBudget(a models.BidderAccount) {
	s.hub.Broadcast(s.event(models.EventBudgetUpdate, budgetPayload(a)))
}

func (s *Session) broadcastStatus() {
	s.hub.Broadcast(s.event(models.EventAuctionStatus, s.Overview()))
}

func (s *Session) recover(ctx context.Context) error {
	lots, err := s.store.ListLotsByStatus(ctx, models.LotLive)
	if err != nil {
		return storageError(err, "load live lots")
	}
	if len(lots) == 0 {
		return nil
	}
	if len(lots) > 1 {
		s.log.Warn("Several lots are live in storage, adopting the first", "count", len(lots))
		if _, _, err := s.retireLive(ctx, lots[1:]); err != nil {
			return err
		}
	}

	lot := lots[0]
	if lot.HasBid() {
		acct, err := s.store.LoadBidderAccount(ctx, lot.HighestBidder)
		if err != nil {
			return storageError(err, "load highest bidder")
		}
		if _, err := s.ledger.Open(*acct); err != nil {
			return err
		}
		if err := s.ledger.Restore(lot.ID, lot.HighestBidder, *lot.HighestBid); err != nil {
			return err
		}
	}

	s.setLive(&lot)
	s.timer.Start(lot.ID, s.cfg.TimerDuration)
	s.log.Info("Recovered live lot", "lot_id", lot.ID, "round", lot.Round, "has_bid", lot.HasBid())
	return nil
}
