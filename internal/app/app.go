package app

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/auction"
	"github.com/abrezinsky/auctionhouse/internal/auth"
	"github.com/abrezinsky/auctionhouse/internal/config"
	"github.com/abrezinsky/auctionhouse/internal/handlers"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/relay"
	"github.com/abrezinsky/auctionhouse/internal/repository"
	"github.com/abrezinsky/auctionhouse/internal/services"
	"github.com/abrezinsky/auctionhouse/internal/websocket"
)

// App holds all application dependencies
type App struct {
	log      logger.Logger
	cfg      *config.Config
	handlers *handlers.Handlers
	repo     *repository.Repository
	hub      *websocket.Hub
	session  *auction.Session
	relay    *relay.Publisher
	settings *services.SettingsService

	cancelHeartbeat context.CancelFunc
	closeOnce       sync.Once
}

// New creates and initializes a new application instance. staticFS may
// be nil to serve the API only.
func New(log logger.Logger, cfg *config.Config, clock clockwork.Clock, staticFS fs.FS) (*App, error) {
	repo, err := repository.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	hub := websocket.New(log, clock, websocket.Options{
		QueueSize:         cfg.WebSocket.QueueSize,
		HeartbeatInterval: cfg.WebSocket.HeartbeatInterval,
		MaxConnections:    cfg.WebSocket.MaxConnections,
	})

	var publisher *relay.Publisher
	if cfg.NATS.URL != "" {
		relayCfg := relay.DefaultConfig()
		relayCfg.URL = cfg.NATS.URL
		relayCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		publisher, err = relay.Connect(relayCfg, log)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to connect event relay: %w", err)
		}
		hub.SetMirror(publisher)
	}

	session := auction.NewSession(log, repo, hub, clock, auction.Config{
		BidIncrement:    decimal.NewFromInt(cfg.Auction.BidIncrement),
		TimerDuration:   cfg.Auction.TimerDuration(),
		AllowSelfOutbid: cfg.Auction.AllowSelfOutbid,
	})
	if err := session.Start(context.Background()); err != nil {
		if publisher != nil {
			publisher.Close()
		}
		repo.Close()
		return nil, fmt.Errorf("failed to start auction session: %w", err)
	}

	// Initialize services
	lotService := services.NewLotService(log, repo, clock)
	bidderService := services.NewBidderService(log, repo, clock)
	settingsService := services.NewSettingsService(log, repo)

	adminAuth := auth.New(cfg.Admin.Password, clock, bidderService)
	hub.SetIdentifier(adminAuth)
	hub.SetGreeter(session.Greeting)

	var staticServer http.Handler
	if staticFS != nil {
		staticServer = handlers.NewStaticServer(staticFS)
	}

	h := handlers.New(
		log,
		session,
		lotService,
		bidderService,
		settingsService,
		adminAuth,
		hub,
		staticServer,
		cfg.Server.CORSOrigins,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.RunHeartbeat(ctx)

	return &App{
		log:             log,
		cfg:             cfg,
		handlers:        h,
		repo:            repo,
		hub:             hub,
		session:         session,
		relay:           publisher,
		settings:        settingsService,
		cancelHeartbeat: cancel,
	}, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Auction returns the live auction session
func (a *App) Auction() *auction.Session {
	return a.session
}

// Close performs graceful shutdown of app resources
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.cancelHeartbeat()
		a.session.Close()
		if a.relay != nil {
			a.relay.Close()
		}
		if err := a.repo.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	})
}

// Run serves HTTP on the configured address until ctx is done, then shuts
// the server down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	publicURL := a.publicURL(ln.Addr())
	a.setDefaultPublicURL(ctx, publicURL)

	srv := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.log.Info("Server starting", "addr", ln.Addr().String(), "url", publicURL)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// publicURL is the configured public URL, or one built from the LAN
// address and the listening port
func (a *App) publicURL(addr net.Addr) string {
	if a.cfg.Server.PublicURL != "" {
		return a.cfg.Server.PublicURL
	}
	port := ""
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = fmt.Sprintf(":%d", tcp.Port)
	}
	return "http://" + getPreferredIP(realNetworkProvider{}) + port
}

// setDefaultPublicURL records the public URL for the join QR code. A
// configured URL always wins; a detected one only fills an empty or
// localhost setting.
func (a *App) setDefaultPublicURL(ctx context.Context, url string) {
	var err error
	if a.cfg.Server.PublicURL != "" {
		err = a.settings.SetPublicURL(ctx, url)
	} else {
		err = a.settings.EnsurePublicURL(ctx, url)
	}
	if err != nil {
		a.log.Warn("Failed to set public URL", "url", url, "error", err)
	}
}

// networkInterface wraps net.Interface for testing
type networkInterface interface {
	Flags() net.Flags
	Addrs() ([]net.Addr, error)
}

type realInterface struct {
	iface net.Interface
}

func (r realInterface) Flags() net.Flags {
	return r.iface.Flags
}

func (r realInterface) Addrs() ([]net.Addr, error) {
	return r.iface.Addrs()
}

// networkProvider is an interface for getting network interfaces (for testing)
type networkProvider interface {
	Interfaces() ([]networkInterface, error)
}

type realNetworkProvider struct{}

func (realNetworkProvider) Interfaces() ([]networkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]networkInterface, len(ifaces))
	for i, iface := range ifaces {
		result[i] = realInterface{iface: iface}
	}
	return result, nil
}

// getPreferredIP returns the best IPv4 address for bidders on the same
// network: a private address if there is one, else any non-loopback
// address, else localhost.
func getPreferredIP(provider networkProvider) string {
	ifaces, err := provider.Interfaces()
	if err != nil {
		return "localhost"
	}

	var fallback net.IP
	for _, iface := range ifaces {
		flags := iface.Flags()
		if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ip := ipOf(addr)
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip.IsPrivate() {
				return ip.String()
			}
			if fallback == nil {
				fallback = ip
			}
		}
	}

	if fallback != nil {
		return fallback.String()
	}
	return "localhost"
}

// ipOf returns the IPv4 address of addr, or nil
func ipOf(addr net.Addr) net.IP {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	return ip.To4()
}
