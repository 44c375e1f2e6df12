package auction

import (
	"context"

	"github.com/abrezinsky/auctionhouse/internal/models"
)

func snapshotOf(lot *models.Lot, remaining int, running bool) models.LotSnapshot {
	snap := models.LotSnapshot{
		LotID:         lot.ID,
		Name:          lot.Name,
		Status:        lot.Status,
		BasePrice:     lot.BasePrice,
		HighestBidder: lot.HighestBidder,
		Round:         lot.Round,
	}
	if lot.HighestBid != nil {
		bid := *lot.HighestBid
		snap.HighestBid = &bid
	}
	if lot.Status == models.LotLive {
		snap.SecondsRemaining = remaining
		snap.TimerRunning = running
	}
	return snap
}

// GetStatus returns a snapshot of a lot. It does not wait for the command
// loop, so reads never queue behind bids.
func (s *Session) GetStatus(ctx context.Context, lotID string) (*models.LotSnapshot, error) {
	if live := s.current(); live != nil && live.ID == lotID {
		snap := s.liveSnapshot(live)
		return &snap, nil
	}
	lot, err := s.loadLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	snap := snapshotOf(lot, 0, false)
	return &snap, nil
}

func (s *Session) liveSnapshot(live *models.Lot) models.LotSnapshot {
	timer := s.timer.Snapshot()
	if timer.LotID != live.ID {
		return snapshotOf(live, 0, false)
	}
	return snapshotOf(live, timer.Remaining, timer.Running)
}

// Overview reports whether the auction is paused and what is live
func (s *Session) Overview() Status {
	s.mu.RLock()
	paused := s.paused
	live := s.live
	s.mu.RUnlock()

	status := Status{Paused: paused}
	if live != nil {
		snap := s.liveSnapshot(live)
		status.Live = &snap
	}
	return status
}

// Greeting is what a freshly connected observer receives
func (s *Session) Greeting() []models.Event {
	return []models.Event{s.event(models.EventAuctionStatus, s.Overview())}
}
