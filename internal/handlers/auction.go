package handlers

import (
	"net/http"

	"github.com/abrezinsky/auctionhouse/internal/auth"
)

func (h *Handlers) handleAuctionStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Auction.Overview())
}

func (h *Handlers) handleListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := h.Lots.ListLots(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, lots)
}

func (h *Handlers) handleGetLot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	lot, err := h.Lots.GetLot(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, lot)
}

// handleLotStatus returns the read-only snapshot, including the countdown for the live lot
func (h *Handlers) handleLotStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status, err := h.Auction.GetStatus(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, status)
}

func (h *Handlers) handleLotBids(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	bids, err := h.Lots.ListBids(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, bids)
}

func (h *Handlers) handleRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.Lots.Rounds(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, rounds)
}

// handlePlaceBid submits a bid for the authenticated bidder. Rejections are
// answered with accepted=false and the status of the mapped error.
func (h *Handlers) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, r, ErrUnauthorized)
		return
	}

	var req BidRequest
	if err := decodeJSON(r, &req); err != nil {
		apiErr := err.(*APIError)
		respondJSON(w, apiErr.Status, BidResponse{Reason: apiErr.Message, Code: apiErr.Code})
		return
	}

	result, err := h.Auction.PlaceBid(r.Context(), req.LotID, identity.BidderID, req.Amount)
	if err != nil {
		apiErr := ToAPIError(err)
		if apiErr.Status >= http.StatusInternalServerError {
			h.log.Error("Bid failed", "lot_id", req.LotID, "bidder_id", identity.BidderID, "error", err)
		}
		respondJSON(w, apiErr.Status, BidResponse{Reason: apiErr.Message, Code: apiErr.Code})
		return
	}

	respondOK(w, BidResponse{Accepted: true, Bid: &result.Bid, Status: &result.Lot})
}

// handleMe returns the authenticated bidder's account
func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, r, ErrUnauthorized)
		return
	}
	acct, err := h.Bidders.GetBidder(r.Context(), identity.BidderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, acct)
}
