// Package relay mirrors broadcast events onto NATS so other processes can
// follow the auction without holding a websocket.
package relay

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
)

// DefaultSubjectPrefix is used when none is configured
const DefaultSubjectPrefix = "auction.events"

// Config holds the NATS connection settings
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns settings for a local server
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// MsgPublisher is the subset of *nats.Conn the relay needs
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher publishes every event it is handed to <prefix>.<event type>.
// Failures are logged and counted, never returned to the caller.
type Publisher struct {
	log    logger.Logger
	conn   MsgPublisher
	nc     *nats.Conn
	prefix string

	published atomic.Uint64
	failed    atomic.Uint64
}

// New wraps an existing connection
func New(log logger.Logger, conn MsgPublisher, prefix string) *Publisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{log: log, conn: conn, prefix: prefix}
}

// Connect dials NATS and returns a publisher that owns the connection
func Connect(cfg Config, log logger.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("auctionhouse"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", "error", err)
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Connection(err)
	}

	p := New(log, nc, cfg.SubjectPrefix)
	p.nc = nc
	log.Info("Event relay connected", "url", nc.ConnectedUrl(), "prefix", p.prefix)
	return p, nil
}

// Subject returns the subject an event type is published on
func (p *Publisher) Subject(t models.EventType) string {
	return p.prefix + "." + string(t)
}

// Publish sends ev to NATS
func (p *Publisher) Publish(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.failed.Add(1)
		p.log.Error("Failed to encode relayed event", "type", ev.Type, "error", err)
		return
	}

	msg := nats.NewMsg(p.Subject(ev.Type))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Header.Set("Event-Type", string(ev.Type))
	msg.Header.Set("Event-Time", ev.Timestamp.Format(time.RFC3339Nano))

	if err := p.conn.PublishMsg(msg); err != nil {
		p.failed.Add(1)
		p.log.Warn("Failed to relay event", "subject", msg.Subject, "error", errors.Connection(err))
		return
	}
	p.published.Add(1)
}

// Counts returns how many events were published and how many failed
func (p *Publisher) Counts() (published, failed uint64) {
	return p.published.Load(), p.failed.Load()
}

// Close flushes and closes the connection if the publisher owns it
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
		p.log.Warn("NATS flush failed", "error", err)
	}
	p.nc.Close()
}
