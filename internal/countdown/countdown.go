package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/logger"
)

// Listener receives countdown notifications. Both methods are called from
// the countdown goroutine, never while the coordinator holds its lock.
// Ticks arrive one at a time and never from a superseded countdown once a
// newer one has ticked.
type Listener interface {
	TimerTick(lotID string, remaining int)
	TimerExpired(lotID string, generation uint64)
}

// State is a snapshot of the coordinator
type State struct {
	LotID      string
	Remaining  int
	Running    bool
	Generation uint64
}

// Coordinator owns the single countdown of the live lot. Every Start or
// Reset bumps the generation so a stale expiry can be told apart.
type Coordinator struct {
	log      logger.Logger
	clock    clockwork.Clock
	listener Listener

	mu         sync.Mutex
	lotID      string
	remaining  int
	running    bool
	generation uint64
	ticker     clockwork.Ticker
	stop       chan struct{}

	// emitMu orders ticks across generations
	emitMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a coordinator; nothing runs until Start
func New(log logger.Logger, clock clockwork.Clock, listener Listener) *Coordinator {
	return &Coordinator{
		log:      log,
		clock:    clock,
		listener: listener,
	}
}

// Start begins a countdown of d for the lot, replacing any running one
func (c *Coordinator) Start(lotID string, d time.Duration) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(lotID, d)
}

// Reset restarts the running countdown of the lot from d
func (c *Coordinator) Reset(lotID string, d time.Duration) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.lotID != lotID {
		return 0, errors.InvalidStatef("no countdown running for lot %s", lotID)
	}
	return c.startLocked(lotID, d), nil
}

// Stop cancels the countdown. It reports whether one was running.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasRunning := c.running
	c.cancelLocked()
	c.running = false
	c.remaining = 0
	return wasRunning
}

// Close stops the countdown and waits for its goroutine to exit
func (c *Coordinator) Close() {
	c.Stop()
	c.wg.Wait()
}

// Snapshot returns the current state
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		LotID:      c.lotID,
		Remaining:  c.remaining,
		Running:    c.running,
		Generation: c.generation,
	}
}

// Generation returns the generation of the latest Start or Reset
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Accepting reports whether the lot's countdown runs with time left
func (c *Coordinator) Accepting(lotID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.lotID == lotID && c.remaining > 0
}

func (c *Coordinator) startLocked(lotID string, d time.Duration) uint64 {
	c.cancelLocked()

	seconds := int(d / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	c.generation++
	c.lotID = lotID
	c.remaining = seconds
	c.running = true
	c.ticker = c.clock.NewTicker(time.Second)
	c.stop = make(chan struct{})

	c.wg.Add(1)
	go c.loop(c.generation, lotID, seconds, c.ticker, c.stop)

	c.log.Debug("Countdown started", "lot_id", lotID, "seconds", seconds, "generation", c.generation)
	return c.generation
}

func (c *Coordinator) cancelLocked() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Coordinator) loop(gen uint64, lotID string, initial int, ticker clockwork.Ticker, stop <-chan struct{}) {
	defer c.wg.Done()

	if !c.current(gen) {
		return
	}
	c.emitTick(gen, lotID, initial)

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if c.generation != gen || !c.running {
				c.mu.Unlock()
				return
			}
			c.remaining--
			remaining := c.remaining
			expired := remaining <= 0
			if expired {
				c.running = false
				c.cancelLocked()
			}
			c.mu.Unlock()

			c.emitTick(gen, lotID, remaining)
			if expired {
				c.log.Info("Countdown expired", "lot_id", lotID, "generation", gen)
				c.emitExpired(lotID, gen)
				return
			}
		}
	}
}

func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.running
}

// emitTick drops the tick when a Start, Reset or Stop got in after the
// value was taken. The final zero of an expiry still goes out.
// Listener failures are contained so the countdown keeps ticking.
func (c *Coordinator) emitTick(gen uint64, lotID string, remaining int) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	stale := c.generation != gen || (!c.running && remaining > 0)
	c.mu.Unlock()
	if stale {
		c.log.Debug("Dropping superseded tick", "lot_id", lotID, "remaining", remaining, "generation", gen)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Timer tick listener failed", "lot_id", lotID, "remaining", remaining, "panic", r)
		}
	}()
	c.listener.TimerTick(lotID, remaining)
}

func (c *Coordinator) emitExpired(lotID string, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Timer expiry listener failed", "lot_id", lotID, "panic", r)
		}
	}()
	c.listener.TimerExpired(lotID, gen)
}
