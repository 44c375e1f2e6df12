package handlers

import (
	"context"
	"io/fs"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/auction"
	"github.com/abrezinsky/auctionhouse/internal/auth"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/services"
	"github.com/abrezinsky/auctionhouse/internal/websocket"
)

// NewStaticServer creates a static file server from an fs.FS
func NewStaticServer(staticFS fs.FS) http.Handler {
	return http.FileServer(http.FS(staticFS))
}

// AuctionServicer is the live auction the handlers drive
type AuctionServicer interface {
	PlaceBid(ctx context.Context, lotID, bidderID string, amount decimal.Decimal) (*auction.BidResult, error)
	ActivateLot(ctx context.Context, lotID string) (*models.LotSnapshot, error)
	ActivateNext(ctx context.Context) (*models.LotSnapshot, error)
	CloseLot(ctx context.Context, lotID string) (*auction.CloseResult, error)
	WithdrawLot(ctx context.Context, lotID string) (*auction.CloseResult, error)
	StartNewRound(ctx context.Context) ([]models.Lot, error)
	Pause(ctx context.Context) (*auction.Status, error)
	Resume(ctx context.Context) (*auction.Status, error)
	GetStatus(ctx context.Context, lotID string) (*models.LotSnapshot, error)
	Overview() auction.Status
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Auction      AuctionServicer
	Lots         services.LotServicer
	Bidders      services.BidderServicer
	Settings     services.SettingsServicer
	Auth         *auth.Auth
	Hub          *websocket.Hub
	CORSOrigins  []string
	log          logger.Logger
	staticServer http.Handler
}

// New creates a new Handlers instance with all dependencies
func New(
	log logger.Logger,
	auctionSvc AuctionServicer,
	lots services.LotServicer,
	bidders services.BidderServicer,
	settings services.SettingsServicer,
	adminAuth *auth.Auth,
	hub *websocket.Hub,
	staticServer http.Handler,
	corsOrigins []string,
) *Handlers {
	return &Handlers{
		Auction:      auctionSvc,
		Lots:         lots,
		Bidders:      bidders,
		Settings:     settings,
		Auth:         adminAuth,
		Hub:          hub,
		CORSOrigins:  corsOrigins,
		log:          log,
		staticServer: staticServer,
	}
}
