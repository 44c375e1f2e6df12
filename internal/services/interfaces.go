package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/models"
)

// LotServicer defines the interface for lot catalogue operations
type LotServicer interface {
	CreateLot(ctx context.Context, in LotInput) (*models.Lot, error)
	UpdateLot(ctx context.Context, id string, in LotInput) (*models.Lot, error)
	ApproveLot(ctx context.Context, id string, approved bool) (*models.Lot, error)
	DeleteLot(ctx context.Context, id string) error
	GetLot(ctx context.Context, id string) (*models.Lot, error)
	ListLots(ctx context.Context, status string) ([]models.Lot, error)
	ListBids(ctx context.Context, lotID string) ([]models.BidRecord, error)
	ListUnsold(ctx context.Context, round int) ([]models.Lot, error)
	Rounds(ctx context.Context) ([]models.RoundSummary, error)
}

// BidderServicer defines the interface for bidder account operations
type BidderServicer interface {
	CreateBidder(ctx context.Context, in BidderInput) (*BidderView, error)
	GetBidder(ctx context.Context, id string) (*BidderView, error)
	ListBidders(ctx context.Context) ([]BidderView, error)
	SetActive(ctx context.Context, id string, active bool) (*BidderView, error)
	IssueToken(ctx context.Context, id string) (string, error)
	Authenticate(ctx context.Context, token string) (string, error)
}

// SettingsServicer defines the interface for settings operations
type SettingsServicer interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetPublicURL(ctx context.Context) (string, error)
	SetPublicURL(ctx context.Context, raw string) error
	EnsurePublicURL(ctx context.Context, fallback string) error
	AllSettings(ctx context.Context) (*Settings, error)
	UpdateSettings(ctx context.Context, update SettingsUpdate) (*Settings, error)
	JoinQR(ctx context.Context) ([]byte, error)
}

// LotInput holds the editable catalogue fields of a lot
type LotInput struct {
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	BasePrice decimal.Decimal `json:"base_price"`
}

// BidderInput holds the fields needed to register a bidder
type BidderInput struct {
	Name    string          `json:"name"`
	Ceiling decimal.Decimal `json:"ceiling"`
}

// Ensure concrete types implement interfaces
var (
	_ LotServicer      = (*LotService)(nil)
	_ BidderServicer   = (*BidderService)(nil)
	_ SettingsServicer = (*SettingsService)(nil)
)
