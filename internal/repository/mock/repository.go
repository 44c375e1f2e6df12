package mock

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
// This provides a flexible way to test error paths without complex database manipulation.
// Injected writer errors also apply inside InTx, after which the transaction rolls back.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.SaveBidRecordError = errors.New("disk full")
//	session := auction.NewSession(log, mockRepo, hub, clock, cfg)
//	_, err := session.PlaceBid(ctx, lotID, bidderID, amount)
//	// err is now a storage error and nothing was applied
type Repository struct {
	repository.FullRepository

	// ===== Lot Errors =====
	LoadLotByIDError      error
	ListLotsError         error
	ListLotsByStatusError error
	ListUnsoldLotsError   error
	CreateLotError        error
	UpdateLotError        error
	ApproveLotError       error
	DeleteLotError        error
	RoundSummariesError   error

	// ===== Bid Errors =====
	ListBidsError       error
	LoadWinningBidError error

	// ===== Bidder Errors =====
	LoadBidderAccountError error
	ListBiddersError       error
	CreateBidderError      error
	SetBidderActiveError   error
	SetBidderTokenError    error
	FindBidderByTokenError error

	// ===== Settings Errors =====
	GetSettingError error
	SetSettingError error

	// ===== Writer Errors =====
	InTxError              error
	SaveLotStateError      error
	SaveBidRecordError     error
	ClearWinningBidError   error
	SaveBidderAccountError error
}

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.FullRepository) *Repository {
	return &Repository{
		FullRepository: real,
	}
}

// ===== Lot Methods =====

func (m *Repository) LoadLotByID(ctx context.Context, id string) (*models.Lot, error) {
	if m.LoadLotByIDError != nil {
		return nil, m.LoadLotByIDError
	}
	return m.FullRepository.LoadLotByID(ctx, id)
}

func (m *Repository) ListLots(ctx context.Context) ([]models.Lot, error) {
	if m.ListLotsError != nil {
		return nil, m.ListLotsError
	}
	return m.FullRepository.ListLots(ctx)
}

func (m *Repository) ListLotsByStatus(ctx context.Context, status models.LotStatus) ([]models.Lot, error) {
	if m.ListLotsByStatusError != nil {
		return nil, m.ListLotsByStatusError
	}
	return m.FullRepository.ListLotsByStatus(ctx, status)
}

func (m *Repository) ListUnsoldLots(ctx context.Context, round int) ([]models.Lot, error) {
	if m.ListUnsoldLotsError != nil {
		return nil, m.ListUnsoldLotsError
	}
	return m.FullRepository.ListUnsoldLots(ctx, round)
}

func (m *Repository) CreateLot(ctx context.Context, lot *models.Lot) error {
	if m.CreateLotError != nil {
		return m.CreateLotError
	}
	return m.FullRepository.CreateLot(ctx, lot)
}

func (m *Repository) UpdateLotDetails(ctx context.Context, id, name, category string, basePrice decimal.Decimal) error {
	if m.UpdateLotError != nil {
		return m.UpdateLotError
	}
	return m.FullRepository.UpdateLotDetails(ctx, id, name, category, basePrice)
}

func (m *Repository) ApproveLot(ctx context.Context, id string, approved bool) error {
	if m.ApproveLotError != nil {
		return m.ApproveLotError
	}
	return m.FullRepository.ApproveLot(ctx, id, approved)
}

func (m *Repository) DeleteLot(ctx context.Context, id string) error {
	if m.DeleteLotError != nil {
		return m.DeleteLotError
	}
	return m.FullRepository.DeleteLot(ctx, id)
}

func (m *Repository) RoundSummaries(ctx context.Context) ([]models.RoundSummary, error) {
	if m.RoundSummariesError != nil {
		return nil, m.RoundSummariesError
	}
	return m.FullRepository.RoundSummaries(ctx)
}

// ===== Bid Methods =====

func (m *Repository) ListBids(ctx context.Context, lotID string) ([]models.BidRecord, error) {
	if m.ListBidsError != nil {
		return nil, m.ListBidsError
	}
	return m.FullRepository.ListBids(ctx, lotID)
}

func (m *Repository) LoadWinningBid(ctx context.Context, lotID string) (*models.BidRecord, error) {
	if m.LoadWinningBidError != nil {
		return nil, m.LoadWinningBidError
	}
	return m.FullRepository.LoadWinningBid(ctx, lotID)
}

// ===== Bidder Methods =====

func (m *Repository) LoadBidderAccount(ctx context.Context, id string) (*models.BidderAccount, error) {
	if m.LoadBidderAccountError != nil {
		return nil, m.LoadBidderAccountError
	}
	return m.FullRepository.LoadBidderAccount(ctx, id)
}

func (m *Repository) ListBidders(ctx context.Context) ([]models.BidderAccount, error) {
	if m.ListBiddersError != nil {
		return nil, m.ListBiddersError
	}
	return m.FullRepository.ListBidders(ctx)
}

func (m *Repository) CreateBidder(ctx context.Context, acct *models.BidderAccount) error {
	if m.CreateBidderError != nil {
		return m.CreateBidderError
	}
	return m.FullRepository.CreateBidder(ctx, acct)
}

func (m *Repository) SetBidderActive(ctx context.Context, id string, active bool) error {
	if m.SetBidderActiveError != nil {
		return m.SetBidderActiveError
	}
	return m.FullRepository.SetBidderActive(ctx, id, active)
}

func (m *Repository) SetBidderToken(ctx context.Context, id, token string) error {
	if m.SetBidderTokenError != nil {
		return m.SetBidderTokenError
	}
	return m.FullRepository.SetBidderToken(ctx, id, token)
}

func (m *Repository) FindBidderByToken(ctx context.Context, token string) (string, error) {
	if m.FindBidderByTokenError != nil {
		return "", m.FindBidderByTokenError
	}
	return m.FullRepository.FindBidderByToken(ctx, token)
}

// ===== Settings Methods =====

func (m *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	if m.GetSettingError != nil {
		return "", m.GetSettingError
	}
	return m.FullRepository.GetSetting(ctx, key)
}

func (m *Repository) SetSetting(ctx context.Context, key, value string) error {
	if m.SetSettingError != nil {
		return m.SetSettingError
	}
	return m.FullRepository.SetSetting(ctx, key, value)
}

// ===== Writer Methods =====

func (m *Repository) InTx(ctx context.Context, fn func(w repository.AuctionWriter) error) error {
	if m.InTxError != nil {
		return m.InTxError
	}
	return m.FullRepository.InTx(ctx, func(w repository.AuctionWriter) error {
		return fn(&writer{AuctionWriter: w, m: m})
	})
}

func (m *Repository) SaveLotState(ctx context.Context, lot *models.Lot) error {
	return (&writer{AuctionWriter: m.FullRepository, m: m}).SaveLotState(ctx, lot)
}

func (m *Repository) SaveBidRecord(ctx context.Context, rec *models.BidRecord) error {
	return (&writer{AuctionWriter: m.FullRepository, m: m}).SaveBidRecord(ctx, rec)
}

func (m *Repository) ClearWinningBid(ctx context.Context, lotID string) error {
	return (&writer{AuctionWriter: m.FullRepository, m: m}).ClearWinningBid(ctx, lotID)
}

func (m *Repository) SaveBidderAccount(ctx context.Context, acct *models.BidderAccount) error {
	return (&writer{AuctionWriter: m.FullRepository, m: m}).SaveBidderAccount(ctx, acct)
}

// writer applies the injected writer errors to a transactional writer
type writer struct {
	repository.AuctionWriter
	m *Repository
}

func (w *writer) SaveLotState(ctx context.Context, lot *models.Lot) error {
	if w.m.SaveLotStateError != nil {
		return w.m.SaveLotStateError
	}
	return w.AuctionWriter.SaveLotState(ctx, lot)
}

func (w *writer) SaveBidRecord(ctx context.Context, rec *models.BidRecord) error {
	if w.m.SaveBidRecordError != nil {
		return w.m.SaveBidRecordError
	}
	return w.AuctionWriter.SaveBidRecord(ctx, rec)
}

func (w *writer) ClearWinningBid(ctx context.Context, lotID string) error {
	if w.m.ClearWinningBidError != nil {
		return w.m.ClearWinningBidError
	}
	return w.AuctionWriter.ClearWinningBid(ctx, lotID)
}

func (w *writer) SaveBidderAccount(ctx context.Context, acct *models.BidderAccount) error {
	if w.m.SaveBidderAccountError != nil {
		return w.m.SaveBidderAccountError
	}
	return w.AuctionWriter.SaveBidderAccount(ctx, acct)
}
