package services_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/repository"
	"github.com/abrezinsky/auctionhouse/internal/repository/mock"
	"github.com/abrezinsky/auctionhouse/internal/services"
	"github.com/abrezinsky/auctionhouse/internal/testutil"
)

func newLotService(t *testing.T) (*services.LotService, *repository.Repository) {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	return services.NewLotService(logger.New(), repo, clockwork.NewFakeClock()), repo
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLotService_CreateLot(t *testing.T) {
	svc, _ := newLotService(t)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, services.LotInput{Name: "  Virat  ", Category: "batter", BasePrice: price("1000")})
	if err != nil {
		t.Fatalf("CreateLot failed: %v", err)
	}
	if lot.Name != "Virat" {
		t.Errorf("expected trimmed name, got %q", lot.Name)
	}
	if lot.Status != models.LotAvailable || lot.Round != 1 || lot.Approved {
		t.Errorf("expected unapproved available lot in round 1, got %+v", lot)
	}

	got, err := svc.GetLot(ctx, lot.ID)
	if err != nil {
		t.Fatalf("GetLot failed: %v", err)
	}
	if !got.BasePrice.Equal(price("1000")) {
		t.Errorf("expected base price 1000, got %s", got.BasePrice)
	}
}

func TestLotService_CreateLotValidation(t *testing.T) {
	svc, _ := newLotService(t)

	tests := []struct {
		name string
		in   services.LotInput
		want error
	}{
		{"empty name", services.LotInput{Name: " ", BasePrice: price("10")}, services.ErrNameRequired},
		{"zero price", services.LotInput{Name: "A", BasePrice: decimal.Zero}, services.ErrInvalidBasePrice},
		{"negative price", services.LotInput{Name: "A", BasePrice: price("-5")}, services.ErrInvalidBasePrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateLot(context.Background(), tt.in)
			if err != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLotService_UpdateAndApprove(t *testing.T) {
	svc, _ := newLotService(t)
	ctx := context.Background()
	lot, _ := svc.CreateLot(ctx, services.LotInput{Name: "A", BasePrice: price("100")})

	updated, err := svc.UpdateLot(ctx, lot.ID, services.LotInput{Name: "B", Category: "bowler", BasePrice: price("200")})
	if err != nil {
		t.Fatalf("UpdateLot failed: %v", err)
	}
	if updated.Name != "B" || updated.Category != "bowler" || !updated.BasePrice.Equal(price("200")) {
		t.Errorf("unexpected lot after update: %+v", updated)
	}

	approved, err := svc.ApproveLot(ctx, lot.ID, true)
	if err != nil {
		t.Fatalf("ApproveLot failed: %v", err)
	}
	if !approved.Approved {
		t.Error("expected lot to be approved")
	}

	if _, err := svc.ApproveLot(ctx, "missing", true); err != services.ErrLotNotFound {
		t.Errorf("expected ErrLotNotFound, got %v", err)
	}
	if _, err := svc.UpdateLot(ctx, "missing", services.LotInput{Name: "X", BasePrice: price("1")}); err != services.ErrLotNotFound {
		t.Errorf("expected ErrLotNotFound, got %v", err)
	}
}

func TestLotService_LiveLotIsNotEditable(t *testing.T) {
	svc, repo := newLotService(t)
	ctx := context.Background()
	lot := testutil.SeedLot(t, repo, "A", "100")

	live := lot.Clone()
	live.Status = models.LotLive
	if err := repo.SaveLotState(ctx, live); err != nil {
		t.Fatalf("SaveLotState failed: %v", err)
	}

	_, err := svc.UpdateLot(ctx, lot.ID, services.LotInput{Name: "B", BasePrice: price("1")})
	if !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
	if err := svc.DeleteLot(ctx, lot.ID); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestLotService_DeleteLot(t *testing.T) {
	svc, _ := newLotService(t)
	ctx := context.Background()
	lot, _ := svc.CreateLot(ctx, services.LotInput{Name: "A", BasePrice: price("100")})

	if err := svc.DeleteLot(ctx, lot.ID); err != nil {
		t.Fatalf("DeleteLot failed: %v", err)
	}
	if _, err := svc.GetLot(ctx, lot.ID); err != services.ErrLotNotFound {
		t.Errorf("expected ErrLotNotFound, got %v", err)
	}
	if err := svc.DeleteLot(ctx, lot.ID); err != services.ErrLotNotFound {
		t.Errorf("expected ErrLotNotFound on second delete, got %v", err)
	}
}

func TestLotService_ListLotsFilter(t *testing.T) {
	svc, repo := newLotService(t)
	ctx := context.Background()
	a := testutil.SeedLot(t, repo, "A", "100")
	testutil.SeedLot(t, repo, "B", "100")

	sold := a.Clone()
	sold.Status = models.LotSold
	repo.SaveLotState(ctx, sold)

	all, err := svc.ListLots(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 lots, got %d (%v)", len(all), err)
	}
	soldOnly, err := svc.ListLots(ctx, "SOLD")
	if err != nil || len(soldOnly) != 1 || soldOnly[0].ID != a.ID {
		t.Fatalf("expected only lot A, got %v (%v)", soldOnly, err)
	}
	live, err := svc.ListLots(ctx, "live")
	if err != nil {
		t.Fatalf("ListLots failed: %v", err)
	}
	if live == nil || len(live) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", live)
	}
	if _, err := svc.ListLots(ctx, "bogus"); err != services.ErrInvalidStatus {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestLotService_ListBidsNewestFirst(t *testing.T) {
	svc, repo := newLotService(t)
	ctx := context.Background()
	lot := testutil.SeedLot(t, repo, "A", "100")
	bidder := testutil.SeedBidder(t, repo, "Team", "5000")

	now := time.Now().UTC()
	for i, amount := range []string{"100", "150", "200"} {
		err := repo.SaveBidRecord(ctx, &models.BidRecord{
			ID:        "bid-" + amount,
			LotID:     lot.ID,
			BidderID:  bidder.ID,
			Amount:    price(amount),
			Round:     1,
			Winning:   true,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("SaveBidRecord failed: %v", err)
		}
	}

	bids, err := svc.ListBids(ctx, lot.ID)
	if err != nil {
		t.Fatalf("ListBids failed: %v", err)
	}
	if len(bids) != 3 || !bids[0].Amount.Equal(price("200")) {
		t.Fatalf("expected newest bid first, got %+v", bids)
	}
	winners := 0
	for _, b := range bids {
		if b.Winning {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one winning bid, got %d", winners)
	}

	if _, err := svc.ListBids(ctx, "missing"); err != services.ErrLotNotFound {
		t.Errorf("expected ErrLotNotFound, got %v", err)
	}
}

func TestLotService_UnsoldAndRounds(t *testing.T) {
	svc, repo := newLotService(t)
	ctx := context.Background()
	a := testutil.SeedLot(t, repo, "A", "100")
	b := testutil.SeedLot(t, repo, "B", "100")
	testutil.SeedLot(t, repo, "C", "100")

	unsoldA := a.Clone()
	unsoldA.Status = models.LotUnsold
	repo.SaveLotState(ctx, unsoldA)
	unsoldB := b.Clone()
	unsoldB.Status = models.LotUnsold
	unsoldB.Round = 2
	repo.SaveLotState(ctx, unsoldB)

	round1, err := svc.ListUnsold(ctx, 1)
	if err != nil || len(round1) != 1 || round1[0].ID != a.ID {
		t.Fatalf("expected only A unsold in round 1, got %v (%v)", round1, err)
	}
	allUnsold, err := svc.ListUnsold(ctx, 0)
	if err != nil || len(allUnsold) != 2 {
		t.Fatalf("expected 2 unsold lots, got %v (%v)", allUnsold, err)
	}
	if _, err := svc.ListUnsold(ctx, -1); err != services.ErrInvalidRound {
		t.Errorf("expected ErrInvalidRound, got %v", err)
	}

	rounds, err := svc.Rounds(ctx)
	if err != nil {
		t.Fatalf("Rounds failed: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %+v", rounds)
	}
	if rounds[0].Round != 1 || rounds[0].Total != 2 || rounds[0].Unsold != 1 || rounds[0].Available != 1 {
		t.Errorf("unexpected round 1 summary: %+v", rounds[0])
	}
}

func TestLotService_StorageErrors(t *testing.T) {
	realRepo := testutil.NewTestRepository(t)
	repo := mock.NewRepository(realRepo)
	svc := services.NewLotService(logger.New(), repo, clockwork.NewFakeClock())
	ctx := context.Background()
	dbErr := stderrors.New("database is locked")

	repo.CreateLotError = dbErr
	_, err := svc.CreateLot(ctx, services.LotInput{Name: "A", BasePrice: price("1")})
	if !errors.Is(err, errors.ErrStorage) || !stderrors.Is(err, dbErr) {
		t.Errorf("expected storage error wrapping cause, got %v", err)
	}

	repo.ListLotsError = dbErr
	if _, err := svc.ListLots(ctx, ""); !errors.Is(err, errors.ErrStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
	repo.RoundSummariesError = dbErr
	if _, err := svc.Rounds(ctx); !errors.Is(err, errors.ErrStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
}
