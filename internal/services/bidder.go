package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

const tokenBytes = 24

// BidderView is an account together with the funds it may still reserve
type BidderView struct {
	models.BidderAccount
	Available decimal.Decimal `json:"available"`
}

func viewOf(a models.BidderAccount) BidderView {
	return BidderView{BidderAccount: a, Available: a.Available()}
}

// BidderService handles bidder registration and bearer tokens.
// Only a hash of each token is stored.
type BidderService struct {
	log        logger.Logger
	repo       repository.BidderRepository
	clock      clockwork.Clock
	randReader io.Reader // for testing: defaults to crypto/rand.Reader
}

// NewBidderService creates a new BidderService
func NewBidderService(log logger.Logger, repo repository.BidderRepository, clock clockwork.Clock) *BidderService {
	return &BidderService{
		log:        log,
		repo:       repo,
		clock:      clock,
		randReader: rand.Reader,
	}
}

// SetRandReader sets a custom random reader (for testing)
func (s *BidderService) SetRandReader(reader io.Reader) {
	s.randReader = reader
}

// CreateBidder registers an active bidder with a budget ceiling
func (s *BidderService) CreateBidder(ctx context.Context, in BidderInput) (*BidderView, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if !in.Ceiling.IsPositive() {
		return nil, ErrInvalidCeiling
	}

	acct := models.BidderAccount{
		ID:        uuid.NewString(),
		Name:      name,
		Ceiling:   in.Ceiling,
		Active:    true,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.CreateBidder(ctx, &acct); err != nil {
		return nil, repoError(err, ErrBidderNotFound, "create bidder")
	}
	s.log.Info("Bidder created", "bidder_id", acct.ID, "name", acct.Name, "ceiling", acct.Ceiling.String())
	view := viewOf(acct)
	return &view, nil
}

// GetBidder returns a bidder account by ID
func (s *BidderService) GetBidder(ctx context.Context, id string) (*BidderView, error) {
	acct, err := s.repo.LoadBidderAccount(ctx, id)
	if err != nil {
		return nil, repoError(err, ErrBidderNotFound, "load bidder")
	}
	view := viewOf(*acct)
	return &view, nil
}

// ListBidders returns every bidder with available funds
func (s *BidderService) ListBidders(ctx context.Context) ([]BidderView, error) {
	accts, err := s.repo.ListBidders(ctx)
	if err != nil {
		return nil, repoError(err, ErrBidderNotFound, "list bidders")
	}
	views := make([]BidderView, 0, len(accts))
	for _, a := range accts {
		views = append(views, viewOf(a))
	}
	return views, nil
}

// SetActive enables or disables bidding for an account
func (s *BidderService) SetActive(ctx context.Context, id string, active bool) (*BidderView, error) {
	if err := s.repo.SetBidderActive(ctx, id, active); err != nil {
		return nil, repoError(err, ErrBidderNotFound, "update bidder")
	}
	s.log.Info("Bidder active changed", "bidder_id", id, "active", active)
	return s.GetBidder(ctx, id)
}

// IssueToken creates a new bearer token for a bidder, revoking the old one.
// The token is returned once and cannot be recovered later.
func (s *BidderService) IssueToken(ctx context.Context, id string) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.randReader, buf); err != nil {
		return "", errors.Internal(err)
	}
	token := hex.EncodeToString(buf)

	if err := s.repo.SetBidderToken(ctx, id, hashToken(token)); err != nil {
		return "", repoError(err, ErrBidderNotFound, "store token")
	}
	s.log.Info("Bidder token issued", "bidder_id", id)
	return token, nil
}

// Authenticate resolves a bearer token to a bidder ID
func (s *BidderService) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenRequired
	}
	id, err := s.repo.FindBidderByToken(ctx, hashToken(token))
	if err != nil {
		return "", repoError(err, ErrUnknownToken, "look up token")
	}
	return id, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
