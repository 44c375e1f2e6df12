package auction

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

func errNotAccepting(lotID string) error {
	return errors.Conflictf("lot %s is not accepting bids", lotID)
}

// handlePlaceBid checks, in order: lot live, countdown running, increment,
// bidder authorized, funds reserved. Nothing changes until all pass and
// the bid is persisted.
func (s *Session) handlePlaceBid(ctx context.Context, cmd placeBidCmd) (*BidResult, error) {
	lot, err := s.acceptingLot(ctx, cmd.lotID)
	if err != nil {
		return nil, err
	}
	if err := s.checkIncrement(lot, cmd.amount); err != nil {
		return nil, err
	}
	if err := s.authorizeBidder(ctx, cmd.bidderID); err != nil {
		return nil, err
	}
	if lot.HighestBidder == cmd.bidderID && !s.cfg.AllowSelfOutbid {
		return nil, errors.Conflictf("bidder %s already holds the highest bid", cmd.bidderID)
	}

	reserved, err := s.ledger.PreviewReserve(lot.ID, cmd.bidderID, cmd.amount)
	if err != nil {
		return nil, err
	}

	previous := ""
	var released *models.BidderAccount
	if lot.HighestBidder != "" && lot.HighestBidder != cmd.bidderID {
		previous = lot.HighestBidder
		acct, _, err := s.ledger.PreviewRelease(lot.ID, previous)
		if err != nil {
			return nil, err
		}
		released = &acct
	}

	now := s.clock.Now().UTC()
	rec := models.BidRecord{
		ID:        uuid.NewString(),
		LotID:     lot.ID,
		BidderID:  cmd.bidderID,
		Amount:    cmd.amount,
		Round:     lot.Round,
		Winning:   true,
		Timestamp: now,
	}
	updated := lot.Clone()
	amount := cmd.amount
	updated.HighestBid = &amount
	updated.HighestBidder = cmd.bidderID
	updated.UpdatedAt = now

	err = s.store.InTx(ctx, func(w repository.AuctionWriter) error {
		if released != nil {
			if err := w.SaveBidderAccount(ctx, released); err != nil {
				return err
			}
		}
		if err := w.SaveBidderAccount(ctx, &reserved); err != nil {
			return err
		}
		if err := w.SaveBidRecord(ctx, &rec); err != nil {
			return err
		}
		return w.SaveLotState(ctx, updated)
	})
	if err != nil {
		return nil, storageError(err, "persist bid")
	}

	// Persisted; from here on the in-memory state follows
	if previous != "" {
		if acct := s.releaseHold(lot.ID, previous); acct != nil {
			released = acct
		}
	}
	reservedNow, err := s.ledger.Reserve(lot.ID, cmd.bidderID, cmd.amount)
	if err != nil {
		s.log.Error("Ledger diverged from persisted bid", "lot_id", lot.ID, "bidder_id", cmd.bidderID, "error", err)
		return nil, errors.Wrap(err, errors.ErrInternal, "ledger diverged from persisted bid")
	}
	s.setLive(updated)

	if _, err := s.timer.Reset(lot.ID, s.cfg.TimerDuration); err != nil {
		// The countdown hit zero after the bid was validated; the queued
		// expiry closes the lot with this bid as the winner.
		s.log.Warn("Bid accepted as the countdown expired", "lot_id", lot.ID, "bidder_id", cmd.bidderID)
	}
	remaining := s.timer.Snapshot().Remaining

	s.log.Info("Bid accepted", "lot_id", lot.ID, "bidder_id", cmd.bidderID, "amount", cmd.amount.String(),
		"previous_bidder_id", previous)

	s.hub.Broadcast(s.event(models.EventBidPlaced, BidPlaced{
		BidID:            rec.ID,
		LotID:            lot.ID,
		BidderID:         cmd.bidderID,
		Amount:           cmd.amount,
		Round:            lot.Round,
		PreviousBidderID: previous,
		SecondsRemaining: remaining,
	}))
	s.broadcastBudget(reservedNow)
	if released != nil {
		s.broadcastBudget(*released)
		s.hub.BroadcastToRoom(models.BidderRoom(previous), s.event(models.EventOutbid, Outbid{
			LotID:    lot.ID,
			Amount:   cmd.amount,
			BidderID: cmd.bidderID,
		}))
	}

	return &BidResult{Bid: rec, Lot: snapshotOf(updated, remaining, remaining > 0)}, nil
}

// acceptingLot returns a copy of the live lot when it takes bids
func (s *Session) acceptingLot(ctx context.Context, lotID string) (*models.Lot, error) {
	live := s.current()
	if live == nil || live.ID != lotID {
		if _, err := s.loadLot(ctx, lotID); err != nil {
			return nil, err
		}
		return nil, errNotAccepting(lotID)
	}
	if s.isPaused() || !s.timer.Accepting(lotID) {
		return nil, errNotAccepting(lotID)
	}
	return live.Clone(), nil
}

// checkIncrement requires the base price for a first bid and the highest
// bid plus the increment afterwards. A zero increment still requires a
// strictly higher amount.
func (s *Session) checkIncrement(lot *models.Lot, amount decimal.Decimal) error {
	if !lot.HasBid() {
		if amount.LessThan(lot.BasePrice) {
			return errors.Validationf("bid of %s is below the base price of %s", amount, lot.BasePrice)
		}
		return nil
	}
	highest := *lot.HighestBid
	if !amount.GreaterThan(highest) {
		return errors.Validationf("bid of %s is not greater than the highest bid of %s", amount, highest)
	}
	minimum := highest.Add(s.cfg.BidIncrement)
	if amount.LessThan(minimum) {
		return errors.Validationf("bid of %s is below the minimum of %s (increment %s)", amount, minimum, s.cfg.BidIncrement)
	}
	return nil
}

// authorizeBidder loads the bidder's account into the ledger on first use
func (s *Session) authorizeBidder(ctx context.Context, bidderID string) error {
	acct, err := s.store.LoadBidderAccount(ctx, bidderID)
	if err == repository.ErrNotFound {
		return errors.Unauthorized("bidder is not registered for this auction")
	}
	if err != nil {
		return storageError(err, "load bidder account")
	}
	if !acct.Active {
		return errors.Unauthorized("bidder is not active in this auction")
	}
	if _, err := s.ledger.Open(*acct); err != nil {
		return err
	}
	return nil
}

// releaseHold applies a release that is already persisted. A ledger that
// disagrees is logged and nil returned.
func (s *Session) releaseHold(lotID, bidderID string) *models.BidderAccount {
	acct, _, err := s.ledger.Release(lotID, bidderID)
	if err != nil {
		s.log.Error("Ledger diverged from persisted release", "lot_id", lotID, "bidder_id", bidderID, "error", err)
		return nil
	}
	return &acct
}
