package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus is the lifecycle state of a lot
type LotStatus string

const (
	LotAvailable LotStatus = "available"
	LotLive      LotStatus = "live"
	LotSold      LotStatus = "sold"
	LotUnsold    LotStatus = "unsold"
)

// Valid reports whether s is one of the known statuses
func (s LotStatus) Valid() bool {
	switch s {
	case LotAvailable, LotLive, LotSold, LotUnsold:
		return true
	}
	return false
}

// Closed reports whether the lot has left the Live state for good in this round
func (s LotStatus) Closed() bool {
	return s == LotSold || s == LotUnsold
}

// Lot is one auctionable item (a player)
type Lot struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Category      string           `json:"category,omitempty"`
	BasePrice     decimal.Decimal  `json:"base_price"`
	Status        LotStatus        `json:"status"`
	Approved      bool             `json:"approved"`
	HighestBid    *decimal.Decimal `json:"highest_bid"`
	HighestBidder string           `json:"highest_bidder,omitempty"`
	Round         int              `json:"round"`
	LiveSince     *time.Time       `json:"live_since,omitempty"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// HasBid reports whether the lot carries a highest bid
func (l *Lot) HasBid() bool {
	return l.HighestBid != nil && l.HighestBidder != ""
}

// Clone returns a deep copy so callers can stage changes without touching the original
func (l *Lot) Clone() *Lot {
	c := *l
	if l.HighestBid != nil {
		bid := *l.HighestBid
		c.HighestBid = &bid
	}
	if l.LiveSince != nil {
		ts := *l.LiveSince
		c.LiveSince = &ts
	}
	if l.ClosedAt != nil {
		ts := *l.ClosedAt
		c.ClosedAt = &ts
	}
	return &c
}

// BidRecord is an append-only entry for an accepted bid.
// Only the Winning flag is ever changed after insert.
type BidRecord struct {
	ID        string          `json:"id"`
	LotID     string          `json:"lot_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Round     int             `json:"round"`
	Winning   bool            `json:"is_winning"`
	Timestamp time.Time       `json:"timestamp"`
}

// BidderAccount is the budget of one team. Available = Ceiling - Committed.
type BidderAccount struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Ceiling   decimal.Decimal `json:"ceiling"`
	Committed decimal.Decimal `json:"committed"`
	Spent     decimal.Decimal `json:"spent"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Available returns the funds the bidder may still reserve
func (a BidderAccount) Available() decimal.Decimal {
	return a.Ceiling.Sub(a.Committed)
}

// Role distinguishes identified callers
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBidder Role = "bidder"
)

// Identity is who a request or connection belongs to
type Identity struct {
	BidderID string `json:"bidder_id,omitempty"`
	Role     Role   `json:"role"`
}

// LotSnapshot is the read-only status view of a lot
type LotSnapshot struct {
	LotID            string           `json:"lot_id"`
	Name             string           `json:"name"`
	Status           LotStatus        `json:"status"`
	BasePrice        decimal.Decimal  `json:"base_price"`
	HighestBid       *decimal.Decimal `json:"highest_bid"`
	HighestBidder    string           `json:"highest_bidder,omitempty"`
	Round            int              `json:"round"`
	SecondsRemaining int              `json:"seconds_remaining"`
	TimerRunning     bool             `json:"timer_running"`
}

// RoundSummary counts lots per status for one auction round
type RoundSummary struct {
	Round     int `json:"round"`
	Total     int `json:"total_lots"`
	Sold      int `json:"sold"`
	Unsold    int `json:"unsold"`
	Available int `json:"available"`
	Live      int `json:"live"`
}
