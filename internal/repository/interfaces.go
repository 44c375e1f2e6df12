package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/models"
)

// LotRepository defines lot catalogue operations
type LotRepository interface {
	LoadLotByID(ctx context.Context, id string) (*models.Lot, error)
	ListLots(ctx context.Context) ([]models.Lot, error)
	ListLotsByStatus(ctx context.Context, status models.LotStatus) ([]models.Lot, error)
	ListUnsoldLots(ctx context.Context, round int) ([]models.Lot, error)
	CreateLot(ctx context.Context, lot *models.Lot) error
	UpdateLotDetails(ctx context.Context, id, name, category string, basePrice decimal.Decimal) error
	ApproveLot(ctx context.Context, id string, approved bool) error
	DeleteLot(ctx context.Context, id string) error
	RoundSummaries(ctx context.Context) ([]models.RoundSummary, error)
}

// BidRepository defines bid history operations
type BidRepository interface {
	ListBids(ctx context.Context, lotID string) ([]models.BidRecord, error)
	LoadWinningBid(ctx context.Context, lotID string) (*models.BidRecord, error)
}

// BidderRepository defines bidder account operations
type BidderRepository interface {
	LoadBidderAccount(ctx context.Context, id string) (*models.BidderAccount, error)
	ListBidders(ctx context.Context) ([]models.BidderAccount, error)
	CreateBidder(ctx context.Context, acct *models.BidderAccount) error
	SetBidderActive(ctx context.Context, id string, active bool) error
	SetBidderToken(ctx context.Context, id, token string) error
	FindBidderByToken(ctx context.Context, token string) (string, error)
}

// SettingsRepository defines settings data operations
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// AuctionWriter holds the writes the live auction performs. Inside InTx
// they run on one transaction.
type AuctionWriter interface {
	SaveLotState(ctx context.Context, lot *models.Lot) error
	SaveBidRecord(ctx context.Context, rec *models.BidRecord) error
	ClearWinningBid(ctx context.Context, lotID string) error
	SaveBidderAccount(ctx context.Context, acct *models.BidderAccount) error
}

// AuctionStore is the persistence the auction session depends on
type AuctionStore interface {
	LoadLotByID(ctx context.Context, id string) (*models.Lot, error)
	LoadBidderAccount(ctx context.Context, id string) (*models.BidderAccount, error)
	ListLotsByStatus(ctx context.Context, status models.LotStatus) ([]models.Lot, error)
	LoadWinningBid(ctx context.Context, lotID string) (*models.BidRecord, error)
	InTx(ctx context.Context, fn func(w AuctionWriter) error) error
}

// FullRepository combines all repository interfaces
// Use this when a service needs access to multiple domains
type FullRepository interface {
	LotRepository
	BidRepository
	BidderRepository
	SettingsRepository
	AuctionWriter
	InTx(ctx context.Context, fn func(w AuctionWriter) error) error
	Ping(ctx context.Context) error
}

// Ensure Repository implements all interfaces
var (
	_ FullRepository = (*Repository)(nil)
	_ AuctionStore   = (*Repository)(nil)
)
