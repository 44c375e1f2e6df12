package handlers

import "github.com/shopspring/decimal"

// LoginRequest represents an admin login
type LoginRequest struct {
	Password string `json:"password"`
}

// BidRequest represents a bid from an authenticated bidder
type BidRequest struct {
	LotID  string          `json:"lot_id"`
	Amount decimal.Decimal `json:"amount"`
}

// LotRequest represents a request to create or edit a lot
type LotRequest struct {
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	BasePrice decimal.Decimal `json:"base_price"`
}

// ApproveRequest represents a request to approve or unapprove a lot
type ApproveRequest struct {
	Approved *bool `json:"approved"`
}

// BidderRequest represents a request to register a bidder
type BidderRequest struct {
	Name    string          `json:"name"`
	Ceiling decimal.Decimal `json:"ceiling"`
}

// ActiveRequest represents a request to enable or disable a bidder
type ActiveRequest struct {
	Active *bool `json:"active"`
}
