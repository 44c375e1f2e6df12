package models

import "time"

// EventType names a broadcast event
type EventType string

const (
	EventConnected     EventType = "connected"
	EventBidPlaced     EventType = "bid_placed"
	EventLotLive       EventType = "lot_live"
	EventLotSold       EventType = "lot_sold"
	EventLotUnsold     EventType = "lot_unsold"
	EventTimerUpdate   EventType = "timer_update"
	EventAuctionStatus EventType = "auction_status"
	EventBudgetUpdate  EventType = "budget_update"
	EventOutbid        EventType = "outbid"
	EventRoundStarted  EventType = "round_started"
)

// Event is the envelope delivered to every observer
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps an event in UTC
func NewEvent(t EventType, payload interface{}, now time.Time) Event {
	return Event{Type: t, Payload: payload, Timestamp: now.UTC()}
}

// BidderRoom is the room every connection of a bidder joins
func BidderRoom(bidderID string) string {
	return "bidder:" + bidderID
}
