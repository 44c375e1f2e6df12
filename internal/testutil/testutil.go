package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

// NewTestRepository creates a new in-memory repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// SeedLot inserts an approved, available lot in round 1
func SeedLot(t *testing.T, repo repository.LotRepository, name, basePrice string) *models.Lot {
	t.Helper()

	now := time.Now().UTC()
	lot := &models.Lot{
		ID:        uuid.NewString(),
		Name:      name,
		BasePrice: decimal.RequireFromString(basePrice),
		Status:    models.LotAvailable,
		Approved:  true,
		Round:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateLot(context.Background(), lot); err != nil {
		t.Fatalf("failed to seed lot %s: %v", name, err)
	}
	return lot
}

// SeedBidder inserts an active bidder with the given budget ceiling
func SeedBidder(t *testing.T, repo repository.BidderRepository, name, ceiling string) *models.BidderAccount {
	t.Helper()

	acct := &models.BidderAccount{
		ID:        uuid.NewString(),
		Name:      name,
		Ceiling:   decimal.RequireFromString(ceiling),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateBidder(context.Background(), acct); err != nil {
		t.Fatalf("failed to seed bidder %s: %v", name, err)
	}
	return acct
}
