package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

// LotServiceRepository defines the repository methods needed by LotService
type LotServiceRepository interface {
	repository.LotRepository
	repository.BidRepository
}

// LotService handles the lot catalogue. Live transitions belong to the
// auction session; this service only edits lots that are not in play.
type LotService struct {
	log   logger.Logger
	repo  LotServiceRepository
	clock clockwork.Clock
}

// NewLotService creates a new LotService
func NewLotService(log logger.Logger, repo LotServiceRepository, clock clockwork.Clock) *LotService {
	return &LotService{log: log, repo: repo, clock: clock}
}

func (in LotInput) validate() (LotInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return in, ErrNameRequired
	}
	if !in.BasePrice.IsPositive() {
		return in, ErrInvalidBasePrice
	}
	return in, nil
}

// CreateLot adds an unapproved lot to round 1
func (s *LotService) CreateLot(ctx context.Context, in LotInput) (*models.Lot, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	lot := &models.Lot{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Category:  in.Category,
		BasePrice: in.BasePrice,
		Status:    models.LotAvailable,
		Round:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateLot(ctx, lot); err != nil {
		return nil, repoError(err, ErrLotNotFound, "create lot")
	}
	s.log.Info("Lot created", "lot_id", lot.ID, "name", lot.Name, "base_price", lot.BasePrice.String())
	return lot, nil
}

// UpdateLot edits the catalogue fields of an available lot
func (s *LotService) UpdateLot(ctx context.Context, id string, in LotInput) (*models.Lot, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLotDetails(ctx, id, in.Name, in.Category, in.BasePrice); err != nil {
		return nil, repoError(err, ErrLotNotFound, "update lot")
	}
	return s.GetLot(ctx, id)
}

// ApproveLot sets whether a lot may be put up for bidding
func (s *LotService) ApproveLot(ctx context.Context, id string, approved bool) (*models.Lot, error) {
	if err := s.repo.ApproveLot(ctx, id, approved); err != nil {
		return nil, repoError(err, ErrLotNotFound, "approve lot")
	}
	s.log.Info("Lot approval changed", "lot_id", id, "approved", approved)
	return s.GetLot(ctx, id)
}

// DeleteLot removes an available lot that never received a bid
func (s *LotService) DeleteLot(ctx context.Context, id string) error {
	if err := s.repo.DeleteLot(ctx, id); err != nil {
		return repoError(err, ErrLotNotFound, "delete lot")
	}
	s.log.Info("Lot deleted", "lot_id", id)
	return nil
}

// GetLot returns a lot by ID
func (s *LotService) GetLot(ctx context.Context, id string) (*models.Lot, error) {
	lot, err := s.repo.LoadLotByID(ctx, id)
	if err != nil {
		return nil, repoError(err, ErrLotNotFound, "load lot")
	}
	return lot, nil
}

// ListLots returns every lot in creation order, optionally only those in one status
func (s *LotService) ListLots(ctx context.Context, status string) ([]models.Lot, error) {
	var (
		lots []models.Lot
		err  error
	)
	if status == "" {
		lots, err = s.repo.ListLots(ctx)
	} else {
		st := models.LotStatus(strings.ToLower(status))
		if !st.Valid() {
			return nil, ErrInvalidStatus
		}
		lots, err = s.repo.ListLotsByStatus(ctx, st)
	}
	if err != nil {
		return nil, repoError(err, ErrLotNotFound, "list lots")
	}
	if lots == nil {
		lots = []models.Lot{}
	}
	return lots, nil
}

// ListBids returns the bid history of a lot, newest first
func (s *LotService) ListBids(ctx context.Context, lotID string) ([]models.BidRecord, error) {
	if _, err := s.GetLot(ctx, lotID); err != nil {
		return nil, err
	}
	bids, err := s.repo.ListBids(ctx, lotID)
	if err != nil {
		return nil, repoError(err, ErrLotNotFound, "list bids")
	}
	if bids == nil {
		bids = []models.BidRecord{}
	}
	return bids, nil
}

// ListUnsold returns the lots that went unsold in a round, or in any round
// when round is 0
func (s *LotService) ListUnsold(ctx context.Context, round int) ([]models.Lot, error) {
	if round < 0 {
		return nil, ErrInvalidRound
	}
	lots, err := s.repo.ListUnsoldLots(ctx, round)
	if err != nil {
		return nil, repoError(err, ErrLotNotFound, "list unsold lots")
	}
	if lots == nil {
		lots = []models.Lot{}
	}
	return lots, nil
}

// Rounds summarizes lot outcomes per round
func (s *LotService) Rounds(ctx context.Context) ([]models.RoundSummary, error) {
	rounds, err := s.repo.RoundSummaries(ctx)
	if err != nil {
		return nil, repoError(err, ErrLotNotFound, "summarize rounds")
	}
	if rounds == nil {
		rounds = []models.RoundSummary{}
	}
	return rounds, nil
}
