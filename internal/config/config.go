// Package config loads the server configuration. Values are layered:
// built-in defaults, then an optional YAML file, then an optional .env
// file, then AUCTION_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Auction   AuctionConfig   `yaml:"auction"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	NATS      NATSConfig      `yaml:"nats"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// PublicURL is what spectators and bidders are pointed at. Detected
	// from the LAN address when empty.
	PublicURL string `yaml:"public_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AdminConfig struct {
	// Password is generated at startup when empty
	Password string `yaml:"password"`
}

type AuctionConfig struct {
	BidIncrement    int64 `yaml:"bid_increment"`
	TimerSeconds    int   `yaml:"timer_seconds"`
	AllowSelfOutbid bool  `yaml:"allow_self_outbid"`
}

// TimerDuration is the countdown length of a live lot
func (a AuctionConfig) TimerDuration() time.Duration {
	return time.Duration(a.TimerSeconds) * time.Second
}

type WebSocketConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	QueueSize         int           `yaml:"queue_size"`
	MaxConnections    int           `yaml:"max_connections"`
}

type NATSConfig struct {
	// URL enables the event relay when set
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the stock configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "auction.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Auction: AuctionConfig{
			BidIncrement: 50,
			TimerSeconds: 30,
		},
		WebSocket: WebSocketConfig{
			HeartbeatInterval: 30 * time.Second,
			QueueSize:         256,
			MaxConnections:    1000,
		},
		NATS: NATSConfig{SubjectPrefix: "auction.events"},
	}
}

// Load builds the configuration. path and envFile may be empty; a named
// file that does not exist is an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	env := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		env = vals
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, key+": not an integer")
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, key+": not a duration")
				return
			}
			*dst = d
		}
	}

	str("AUCTION_SERVER_ADDR", &c.Server.Addr)
	if v, ok := lookup("AUCTION_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	duration("AUCTION_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("AUCTION_PUBLIC_URL", &c.Server.PublicURL)
	str("AUCTION_DB_PATH", &c.Database.Path)
	str("AUCTION_LOG_LEVEL", &c.Log.Level)
	str("AUCTION_LOG_FORMAT", &c.Log.Format)
	str("AUCTION_ADMIN_PASSWORD", &c.Admin.Password)

	if v, ok := lookup("AUCTION_BID_INCREMENT"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, "AUCTION_BID_INCREMENT: not an integer")
		} else {
			c.Auction.BidIncrement = n
		}
	}
	integer("AUCTION_TIMER_SECONDS", &c.Auction.TimerSeconds)
	if v, ok := lookup("AUCTION_ALLOW_SELF_OUTBID"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, "AUCTION_ALLOW_SELF_OUTBID: not a boolean")
		} else {
			c.Auction.AllowSelfOutbid = b
		}
	}

	duration("AUCTION_WS_HEARTBEAT_INTERVAL", &c.WebSocket.HeartbeatInterval)
	integer("AUCTION_WS_QUEUE_SIZE", &c.WebSocket.QueueSize)
	integer("AUCTION_WS_MAX_CONNECTIONS", &c.WebSocket.MaxConnections)

	str("AUCTION_NATS_URL", &c.NATS.URL)
	str("AUCTION_NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return fmt.Errorf("server.addr is required")
	case c.Database.Path == "":
		return fmt.Errorf("database.path is required")
	case c.Auction.TimerSeconds < 1:
		return fmt.Errorf("auction.timer_seconds must be at least 1, got %d", c.Auction.TimerSeconds)
	case c.Auction.BidIncrement < 0:
		return fmt.Errorf("auction.bid_increment must not be negative, got %d", c.Auction.BidIncrement)
	case c.WebSocket.QueueSize < 1:
		return fmt.Errorf("websocket.queue_size must be at least 1, got %d", c.WebSocket.QueueSize)
	case c.WebSocket.HeartbeatInterval < time.Second:
		return fmt.Errorf("websocket.heartbeat_interval must be at least 1s, got %s", c.WebSocket.HeartbeatInterval)
	case c.WebSocket.MaxConnections < 0:
		return fmt.Errorf("websocket.max_connections must not be negative, got %d", c.WebSocket.MaxConnections)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix is required when nats.url is set")
	}
	return nil
}
