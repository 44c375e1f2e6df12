package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abrezinsky/auctionhouse/internal/auction"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
)

// ANSI escape codes
const (
	reset  = "\033[0m"
	yellow = "\033[33m"
	red    = "\033[31m"
	green  = "\033[32m"
	cyan   = "\033[36m"
	bold   = "\033[1m"
)

// auctioneer is the part of the session the console drives
type auctioneer interface {
	Overview() auction.Status
	Pause(ctx context.Context) (*auction.Status, error)
	Resume(ctx context.Context) (*auction.Status, error)
	ActivateNext(ctx context.Context) (*models.LotSnapshot, error)
}

// console runs single-letter operator commands read line by line
type console struct {
	out      io.Writer
	log      *logger.SlogLogger
	auction  auctioneer
	boardURL string
	open     func(url string) error
	quit     func()
}

// run reads commands until in is exhausted or ctx is done
func (c *console) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.handle(ctx, line)
		}
	}
}

func (c *console) handle(ctx context.Context, line string) {
	cmd := strings.ToLower(strings.TrimSpace(line))
	if cmd == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch cmd {
	case "b":
		fmt.Fprintf(c.out, "%sOpening board in browser...%s\n", cyan, reset)
		if err := c.open(c.boardURL); err != nil {
			fmt.Fprintf(c.out, "%sError opening browser: %v%s\n", red, err, reset)
		}
	case "s":
		c.printStatus(c.auction.Overview())
	case "n":
		snap, err := c.auction.ActivateNext(ctx)
		if err != nil {
			fmt.Fprintf(c.out, "%s%v%s\n", red, err, reset)
			return
		}
		fmt.Fprintf(c.out, "%sLive: %s (base %s, round %d)%s\n", green, snap.Name, snap.BasePrice, snap.Round, reset)
	case "p":
		var status *auction.Status
		var err error
		if c.auction.Overview().Paused {
			status, err = c.auction.Resume(ctx)
		} else {
			status, err = c.auction.Pause(ctx)
		}
		if err != nil {
			fmt.Fprintf(c.out, "%s%v%s\n", red, err, reset)
			return
		}
		if status.Paused {
			fmt.Fprintf(c.out, "%sAuction paused%s\n", yellow, reset)
		} else {
			fmt.Fprintf(c.out, "%sAuction resumed%s\n", green, reset)
		}
	case "h":
		if c.log.IsHTTPLoggingEnabled() {
			c.log.DisableHTTPLogging()
			fmt.Fprintf(c.out, "%sHTTP logging disabled%s\n", yellow, reset)
		} else {
			c.log.EnableHTTPLogging()
			fmt.Fprintf(c.out, "%sHTTP logging enabled%s\n", green, reset)
		}
	case "l":
		next := nextLogLevel(c.log.GetLevel().String())
		c.log.SetLevel(logger.ParseLevel(next))
		fmt.Fprintf(c.out, "%sLog level: %s%s%s\n", green, yellow, next, reset)
	case "q":
		fmt.Fprintf(c.out, "%sShutting down server...%s\n", yellow, reset)
		c.quit()
	case "?":
		c.printHelp()
	default:
		fmt.Fprintf(c.out, "%sUnknown command %q, type ? for help%s\n", red, cmd, reset)
	}
}

func (c *console) printStatus(status auction.Status) {
	state := green + "running" + reset
	if status.Paused {
		state = yellow + "paused" + reset
	}
	fmt.Fprintf(c.out, "Auction %s\n", state)
	if status.Live == nil {
		fmt.Fprintln(c.out, "No lot is live")
		return
	}
	live := status.Live
	high := "none"
	if live.HighestBid != nil {
		high = live.HighestBid.String() + " by " + live.HighestBidder
	}
	fmt.Fprintf(c.out, "Live: %s, highest %s, %ds left\n", live.Name, high, live.SecondsRemaining)
}

// nextLogLevel cycles through debug -> info -> warn -> error
func nextLogLevel(current string) string {
	switch current {
	case "DEBUG":
		return "info"
	case "INFO":
		return "warn"
	case "WARN":
		return "error"
	case "ERROR":
		return "debug"
	default:
		return "info"
	}
}

func (c *console) printHelp() {
	fmt.Fprintf(c.out, "\n%s%s  Console commands (type a letter, then Enter):%s\n", bold, green, reset)
	fmt.Fprintf(c.out, "    %sb%s      - Open the spectator board in a browser\n", cyan, reset)
	fmt.Fprintf(c.out, "    %ss%s      - Show auction status\n", cyan, reset)
	fmt.Fprintf(c.out, "    %sn%s      - Put the next approved lot live\n", cyan, reset)
	fmt.Fprintf(c.out, "    %sp%s      - Pause or resume the auction\n", cyan, reset)
	fmt.Fprintf(c.out, "    %sh%s      - Toggle HTTP request logging\n", cyan, reset)
	fmt.Fprintf(c.out, "    %sl%s      - Cycle log level (debug → info → warn → error)\n", cyan, reset)
	fmt.Fprintf(c.out, "    %sq%s      - Quit server\n", cyan, reset)
	fmt.Fprintf(c.out, "    %s?%s      - Show this help\n\n", cyan, reset)
}
