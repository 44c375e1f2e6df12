package auction

import (
	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/models"
)

// Broadcaster delivers events to connected observers
type Broadcaster interface {
	Broadcast(ev models.Event, exclude ...string)
	BroadcastToRoom(room string, ev models.Event)
}

// BidPlaced is the payload of bid_placed
type BidPlaced struct {
	BidID            string          `json:"bid_id"`
	LotID            string          `json:"lot_id"`
	BidderID         string          `json:"bidder_id"`
	Amount           decimal.Decimal `json:"amount"`
	Round            int             `json:"round"`
	PreviousBidderID string          `json:"previous_bidder_id,omitempty"`
	SecondsRemaining int             `json:"seconds_remaining"`
}

// LotClosed is the payload of lot_sold and lot_unsold
type LotClosed struct {
	LotID     string           `json:"lot_id"`
	Name      string           `json:"name"`
	Status    models.LotStatus `json:"status"`
	Round     int              `json:"round"`
	BidderID  string           `json:"bidder_id,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Reason    CloseReason      `json:"reason"`
	Withdrawn bool             `json:"withdrawn,omitempty"`
}

// TimerUpdate is the payload of timer_update
type TimerUpdate struct {
	LotID            string `json:"lot_id"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

// BudgetUpdate is the payload of budget_update
type BudgetUpdate struct {
	BidderID  string          `json:"bidder_id"`
	Name      string          `json:"name"`
	Ceiling   decimal.Decimal `json:"ceiling"`
	Committed decimal.Decimal `json:"committed"`
	Available decimal.Decimal `json:"available"`
	Spent     decimal.Decimal `json:"spent"`
}

// Outbid is the payload sent to the room of a bidder who lost the lead
type Outbid struct {
	LotID    string          `json:"lot_id"`
	Amount   decimal.Decimal `json:"amount"`
	BidderID string          `json:"bidder_id"`
}

// RoundStarted is the payload of round_started
type RoundStarted struct {
	Lots   []string `json:"lot_ids"`
	Rounds []int    `json:"rounds"`
}

// Status is the payload of auction_status and the answer to Overview
type Status struct {
	Paused bool                `json:"paused"`
	Live   *models.LotSnapshot `json:"live,omitempty"`
}

func budgetPayload(a models.BidderAccount) BudgetUpdate {
	return BudgetUpdate{
		BidderID:  a.ID,
		Name:      a.Name,
		Ceiling:   a.Ceiling,
		Committed: a.Committed,
		Available: a.Available(),
		Spent:     a.Spent,
	}
}
