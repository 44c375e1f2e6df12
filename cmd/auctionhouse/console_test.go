package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/auction"
	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
)

type fakeAuction struct {
	status  auction.Status
	next    *models.LotSnapshot
	nextErr error
	pauses  int
	resumes int
}

func (f *fakeAuction) Overview() auction.Status { return f.status }

func (f *fakeAuction) Pause(ctx context.Context) (*auction.Status, error) {
	f.pauses++
	f.status.Paused = true
	s := f.status
	return &s, nil
}

func (f *fakeAuction) Resume(ctx context.Context) (*auction.Status, error) {
	f.resumes++
	f.status.Paused = false
	s := f.status
	return &s, nil
}

func (f *fakeAuction) ActivateNext(ctx context.Context) (*models.LotSnapshot, error) {
	return f.next, f.nextErr
}

func newTestConsole() (*console, *fakeAuction, *bytes.Buffer) {
	fake := &fakeAuction{}
	out := &bytes.Buffer{}
	c := &console{
		out:      out,
		log:      logger.NewWithOptions(&bytes.Buffer{}, logger.FormatText, slog.LevelInfo),
		auction:  fake,
		boardURL: "http://localhost:8080/",
		open:     func(string) error { return nil },
		quit:     func() {},
	}
	return c, fake, out
}

func TestConsole_PauseToggles(t *testing.T) {
	c, fake, out := newTestConsole()
	ctx := context.Background()

	c.handle(ctx, "p")
	c.handle(ctx, "P ")

	if fake.pauses != 1 || fake.resumes != 1 {
		t.Errorf("expected one pause and one resume, got %d/%d", fake.pauses, fake.resumes)
	}
	if !strings.Contains(out.String(), "Auction paused") || !strings.Contains(out.String(), "Auction resumed") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestConsole_NextLot(t *testing.T) {
	c, fake, out := newTestConsole()
	ctx := context.Background()

	fake.nextErr = errors.NotFound("no approved lot is available")
	c.handle(ctx, "n")
	if !strings.Contains(out.String(), "no approved lot") {
		t.Errorf("expected the error to be shown, got %q", out.String())
	}

	fake.nextErr = nil
	fake.next = &models.LotSnapshot{Name: "Rohit", BasePrice: decimal.NewFromInt(2000), Round: 1}
	c.handle(ctx, "n")
	if !strings.Contains(out.String(), "Live: Rohit (base 2000, round 1)") {
		t.Errorf("expected the live lot, got %q", out.String())
	}
}

func TestConsole_Status(t *testing.T) {
	c, fake, out := newTestConsole()

	c.handle(context.Background(), "s")
	if !strings.Contains(out.String(), "No lot is live") {
		t.Errorf("unexpected output %q", out.String())
	}

	bid := decimal.NewFromInt(1500)
	fake.status = auction.Status{Live: &models.LotSnapshot{Name: "Rohit", HighestBid: &bid, HighestBidder: "mumbai", SecondsRemaining: 12}}
	out.Reset()
	c.handle(context.Background(), "s")
	if !strings.Contains(out.String(), "Live: Rohit, highest 1500 by mumbai, 12s left") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestConsole_LoggingControls(t *testing.T) {
	c, _, out := newTestConsole()
	ctx := context.Background()

	c.handle(ctx, "h")
	if !c.log.IsHTTPLoggingEnabled() {
		t.Error("expected HTTP logging enabled")
	}
	c.handle(ctx, "h")
	if c.log.IsHTTPLoggingEnabled() {
		t.Error("expected HTTP logging disabled")
	}

	c.handle(ctx, "l")
	if c.log.GetLevel() != slog.LevelWarn {
		t.Errorf("expected warn after info, got %s", c.log.GetLevel())
	}
	if !strings.Contains(out.String(), "Log level: ") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestConsole_OpenAndQuit(t *testing.T) {
	c, _, out := newTestConsole()
	ctx := context.Background()

	var opened string
	c.open = func(url string) error { opened = url; return stderrors.New("no display") }
	quit := false
	c.quit = func() { quit = true }

	c.handle(ctx, "b")
	if opened != "http://localhost:8080/" || !strings.Contains(out.String(), "no display") {
		t.Errorf("expected board open attempt with error, got %q / %q", opened, out.String())
	}

	c.handle(ctx, "q")
	if !quit {
		t.Error("expected quit to be called")
	}

	c.handle(ctx, "zzz")
	if !strings.Contains(out.String(), "Unknown command") {
		t.Errorf("expected unknown command notice, got %q", out.String())
	}
}

func TestConsole_RunStopsAtEOF(t *testing.T) {
	c, fake, _ := newTestConsole()

	done := make(chan struct{})
	go func() {
		c.run(context.Background(), strings.NewReader("p\n\n?\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return at end of input")
	}
	if fake.pauses != 1 {
		t.Errorf("expected one pause, got %d", fake.pauses)
	}
}

func TestNextLogLevel(t *testing.T) {
	tests := map[string]string{
		"DEBUG": "info",
		"INFO":  "warn",
		"WARN":  "error",
		"ERROR": "debug",
		"":      "info",
	}
	for current, want := range tests {
		if got := nextLogLevel(current); got != want {
			t.Errorf("nextLogLevel(%q) = %q, want %q", current, got, want)
		}
	}
}

func TestLocalURL(t *testing.T) {
	if got := localURL(":8080"); got != "http://localhost:8080/" {
		t.Errorf("unexpected %q", got)
	}
	if got := localURL("10.0.0.2:9000"); got != "http://10.0.0.2:9000/" {
		t.Errorf("unexpected %q", got)
	}
}
