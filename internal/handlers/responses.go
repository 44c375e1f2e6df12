package handlers

import (
	"github.com/abrezinsky/auctionhouse/internal/auction"
	"github.com/abrezinsky/auctionhouse/internal/models"
	"github.com/abrezinsky/auctionhouse/internal/websocket"
)

// BidResponse reports whether a bid was accepted. Rejections carry the
// reason and an error code.
type BidResponse struct {
	Accepted bool                `json:"accepted"`
	Reason   string              `json:"reason,omitempty"`
	Code     string              `json:"code,omitempty"`
	Bid      *models.BidRecord   `json:"bid,omitempty"`
	Status   *models.LotSnapshot `json:"status,omitempty"`
}

// RoundResponse is the response for starting a new round
type RoundResponse struct {
	Lots []models.Lot `json:"lots"`
}

// TokenResponse carries a freshly issued bidder token
type TokenResponse struct {
	BidderID string `json:"bidder_id"`
	Token    string `json:"token"`
}

// StatsResponse is the response for the admin stats endpoint
type StatsResponse struct {
	Auction     auction.Status  `json:"auction"`
	Connections websocket.Stats `json:"connections"`
}
