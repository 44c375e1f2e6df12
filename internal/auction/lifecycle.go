package auction

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

func (s *Session) handleActivate(ctx context.Context, lotID string) (*models.LotSnapshot, error) {
	if s.isPaused() {
		return nil, errors.Conflict("auction is paused")
	}
	if live := s.current(); live != nil {
		return nil, errors.Conflictf("lot %s is already live", live.ID)
	}

	lot, err := s.loadLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if lot.Status != models.LotAvailable {
		return nil, errors.InvalidStatef("lot %s is %s and cannot go live", lot.ID, lot.Status)
	}
	if !lot.Approved {
		return nil, errors.Conflictf("lot %s is not approved", lot.ID)
	}

	now := s.clock.Now().UTC()
	updated := lot.Clone()
	updated.Status = models.LotLive
	updated.LiveSince = &now
	updated.ClosedAt = nil
	updated.UpdatedAt = now

	err = s.store.InTx(ctx, func(w repository.AuctionWriter) error {
		return w.SaveLotState(ctx, updated)
	})
	if err != nil {
		return nil, storageError(err, "persist activation")
	}

	s.setLive(updated)
	s.timer.Start(updated.ID, s.cfg.TimerDuration)
	s.log.Info("Lot is live", "lot_id", updated.ID, "round", updated.Round, "base_price", updated.BasePrice.String())

	snap := snapshotOf(updated, s.timer.Snapshot().Remaining, true)
	s.hub.Broadcast(s.event(models.EventLotLive, snap))
	s.broadcastStatus()
	return &snap, nil
}

func (s *Session) handleActivateNext(ctx context.Context) (*models.LotSnapshot, error) {
	lots, err := s.store.ListLotsByStatus(ctx, models.LotAvailable)
	if err != nil {
		return nil, storageError(err, "list available lots")
	}
	for _, lot := range lots {
		if lot.Approved {
			return s.handleActivate(ctx, lot.ID)
		}
	}
	return nil, errors.NotFound("no approved lot is available")
}

// handleClose is the single close path for admin close, withdrawal and
// timer expiry. generation is only checked for expiry.
func (s *Session) handleClose(ctx context.Context, lotID string, reason CloseReason, generation uint64) (*CloseResult, error) {
	live := s.current()
	if live == nil || live.ID != lotID {
		if reason == CloseExpired {
			s.log.Debug("Expiry for a lot that is no longer live", "lot_id", lotID)
			return nil, nil
		}
		lot, err := s.loadLot(ctx, lotID)
		if err != nil {
			return nil, err
		}
		if lot.Status.Closed() {
			s.log.Info("Lot already closed", "lot_id", lotID, "status", lot.Status)
			return &CloseResult{Lot: *lot, Reason: reason, AlreadyClosed: true}, nil
		}
		if lot.Status == models.LotLive {
			return s.closeStale(ctx, lot, reason)
		}
		return nil, errors.InvalidStatef("lot %s is %s, not live", lotID, lot.Status)
	}
	if reason == CloseExpired && generation != s.timer.Generation() {
		s.log.Debug("Ignoring superseded countdown expiry", "lot_id", lotID, "generation", generation)
		return nil, nil
	}

	now := s.clock.Now().UTC()
	updated := live.Clone()
	updated.ClosedAt = &now
	updated.UpdatedAt = now

	sold := live.HasBid() && reason != CloseWithdrawn
	var acct *models.BidderAccount
	switch {
	case sold:
		updated.Status = models.LotSold
		a, _, err := s.ledger.PreviewCommit(live.ID, live.HighestBidder)
		if err != nil {
			return nil, err
		}
		acct = &a
	case live.HasBid():
		updated.Status = models.LotUnsold
		updated.HighestBid = nil
		updated.HighestBidder = ""
		a, _, err := s.ledger.PreviewRelease(live.ID, live.HighestBidder)
		if err != nil {
			return nil, err
		}
		acct = &a
	default:
		updated.Status = models.LotUnsold
	}

	err := s.store.InTx(ctx, func(w repository.AuctionWriter) error {
		if acct != nil {
			if err := w.SaveBidderAccount(ctx, acct); err != nil {
				return err
			}
		}
		if live.HasBid() && !sold {
			if err := w.ClearWinningBid(ctx, live.ID); err != nil {
				return err
			}
		}
		return w.SaveLotState(ctx, updated)
	})
	if err != nil {
		return nil, storageError(err, "persist close")
	}

	s.timer.Stop()
	if acct != nil {
		var applied models.BidderAccount
		if sold {
			applied, _, err = s.ledger.Commit(live.ID, live.HighestBidder)
		} else {
			applied, _, err = s.ledger.Release(live.ID, live.HighestBidder)
		}
		if err != nil {
			s.log.Error("Ledger diverged from persisted close", "lot_id", live.ID, "error", err)
		} else {
			acct = &applied
		}
	}
	s.setLive(nil)

	payload := LotClosed{
		LotID:     updated.ID,
		Name:      updated.Name,
		Status:    updated.Status,
		Round:     updated.Round,
		Reason:    reason,
		Withdrawn: reason == CloseWithdrawn,
	}
	evType := models.EventLotUnsold
	if sold {
		evType = models.EventLotSold
		payload.BidderID = updated.HighestBidder
		payload.Amount = updated.HighestBid
	}
	s.log.Info("Lot closed", "lot_id", updated.ID, "status", updated.Status, "reason", reason,
		"bidder_id", payload.BidderID)

	s.hub.Broadcast(s.event(evType, payload))
	if acct != nil {
		s.broadcastBudget(*acct)
	}
	s.broadcastStatus()

	return &CloseResult{Lot: *updated, Reason: reason}, nil
}

// closeStale closes a lot that storage holds as Live but the session does
// not run. Without a countdown or a ledger hold it always closes unsold.
func (s *Session) closeStale(ctx context.Context, lot *models.Lot, reason CloseReason) (*CloseResult, error) {
	retired, accounts, err := s.retireLive(ctx, []models.Lot{*lot})
	if err != nil {
		return nil, err
	}
	closed := retired[0]
	s.log.Warn("Closed a lot that was live without a countdown", "lot_id", closed.ID, "reason", reason)

	s.hub.Broadcast(s.event(models.EventLotUnsold, LotClosed{
		LotID:     closed.ID,
		Name:      closed.Name,
		Status:    closed.Status,
		Round:     closed.Round,
		Reason:    reason,
		Withdrawn: reason == CloseWithdrawn,
	}))
	for _, a := range accounts {
		s.broadcastBudget(a)
	}
	s.broadcastStatus()
	return &CloseResult{Lot: closed, Reason: reason}, nil
}

// retireLive moves lots left Live in storage to Unsold in one transaction,
// clearing their winning bids and returning the committed funds.
func (s *Session) retireLive(ctx context.Context, lots []models.Lot) ([]models.Lot, []models.BidderAccount, error) {
	now := s.clock.Now().UTC()
	retired := make([]models.Lot, 0, len(lots))
	byBidder := make(map[string]*models.BidderAccount)
	var order []string

	for i := range lots {
		lot := &lots[i]
		updated := lot.Clone()
		updated.Status = models.LotUnsold
		updated.HighestBid = nil
		updated.HighestBidder = ""
		updated.ClosedAt = &now
		updated.UpdatedAt = now
		retired = append(retired, *updated)

		if !lot.HasBid() {
			continue
		}
		acct, ok := byBidder[lot.HighestBidder]
		if !ok {
			loaded, err := s.bidderAccount(ctx, lot.HighestBidder)
			if err != nil {
				return nil, nil, err
			}
			acct = loaded
			byBidder[acct.ID] = acct
			order = append(order, acct.ID)
		}
		acct.Committed = acct.Committed.Sub(*lot.HighestBid)
		if acct.Committed.IsNegative() {
			s.log.Warn("Stale live bid exceeds committed funds", "lot_id", lot.ID, "bidder_id", acct.ID)
			acct.Committed = decimal.Zero
		}
	}

	err := s.store.InTx(ctx, func(w repository.AuctionWriter) error {
		for _, id := range order {
			if err := w.SaveBidderAccount(ctx, byBidder[id]); err != nil {
				return err
			}
		}
		for i := range lots {
			if lots[i].HasBid() {
				if err := w.ClearWinningBid(ctx, lots[i].ID); err != nil {
					return err
				}
			}
			if err := w.SaveLotState(ctx, &retired[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, storageError(err, "persist stale live lots")
	}

	accounts := make([]models.BidderAccount, 0, len(order))
	for i := range lots {
		lot := &lots[i]
		if !lot.HasBid() || !s.ledger.Has(lot.HighestBidder) {
			continue
		}
		if err := s.ledger.Restore(lot.ID, lot.HighestBidder, *lot.HighestBid); err != nil {
			s.log.Error("Ledger diverged from persisted release", "lot_id", lot.ID, "bidder_id", lot.HighestBidder, "error", err)
			continue
		}
		s.releaseHold(lot.ID, lot.HighestBidder)
	}
	for _, id := range order {
		accounts = append(accounts, *byBidder[id])
	}
	for _, lot := range retired {
		s.log.Info("Stale live lot closed unsold", "lot_id", lot.ID, "round", lot.Round)
	}
	return retired, accounts, nil
}

// bidderAccount prefers the ledger's copy, which is current once opened
func (s *Session) bidderAccount(ctx context.Context, bidderID string) (*models.BidderAccount, error) {
	if a, ok := s.ledger.Account(bidderID); ok {
		return &a, nil
	}
	a, err := s.store.LoadBidderAccount(ctx, bidderID)
	if err == repository.ErrNotFound {
		return nil, errors.NotFoundf("bidder %s not found", bidderID)
	}
	if err != nil {
		return nil, storageError(err, "load bidder account")
	}
	return a, nil
}

func (s *Session) handleNewRound(ctx context.Context) ([]models.Lot, error) {
	lots, err := s.store.ListLotsByStatus(ctx, models.LotUnsold)
	if err != nil {
		return nil, storageError(err, "list unsold lots")
	}
	if len(lots) == 0 {
		return nil, errors.Conflict("no unsold lots to re-offer")
	}

	now := s.clock.Now().UTC()
	staged := make([]models.Lot, 0, len(lots))
	for i := range lots {
		lot := lots[i].Clone()
		lot.Status = models.LotAvailable
		lot.Round++
		lot.HighestBid = nil
		lot.HighestBidder = ""
		lot.LiveSince = nil
		lot.ClosedAt = nil
		lot.UpdatedAt = now
		staged = append(staged, *lot)
	}

	err = s.store.InTx(ctx, func(w repository.AuctionWriter) error {
		for i := range staged {
			if err := w.SaveLotState(ctx, &staged[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "persist new round")
	}

	payload := RoundStarted{}
	for _, lot := range staged {
		payload.Lots = append(payload.Lots, lot.ID)
		payload.Rounds = append(payload.Rounds, lot.Round)
	}
	s.log.Info("New round started", "lots", len(staged))
	s.hub.Broadcast(s.event(models.EventRoundStarted, payload))
	s.broadcastStatus()
	return staged, nil
}

func (s *Session) handlePause(paused bool) *Status {
	s.mu.Lock()
	changed := s.paused != paused
	s.paused = paused
	live := s.live
	s.mu.Unlock()

	if changed && live != nil {
		if paused {
			s.timer.Stop()
		} else {
			s.timer.Start(live.ID, s.cfg.TimerDuration)
		}
	}
	if changed {
		s.log.Info("Auction pause changed", "paused", paused)
		s.broadcastStatus()
	}
	status := s.Overview()
	return &status
}
