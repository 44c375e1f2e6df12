package handlers

import (
	"net/http"

	"github.com/abrezinsky/auctionhouse/internal/services"
)

// ==================== Lots ====================

func (h *Handlers) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	var req LotRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	lot, err := h.Lots.CreateLot(r.Context(), services.LotInput(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondCreated(w, lot)
}

func (h *Handlers) handleUpdateLot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req LotRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	lot, err := h.Lots.UpdateLot(r.Context(), id, services.LotInput(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, lot)
}

func (h *Handlers) handleDeleteLot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.Lots.DeleteLot(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondDeleted(w)
}

// handleApproveLot approves a lot; an empty body approves
func (h *Handlers) handleApproveLot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	approved := true
	if r.ContentLength > 0 {
		var req ApproveRequest
		if err := decodeJSON(r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
		if req.Approved != nil {
			approved = *req.Approved
		}
	}
	lot, err := h.Lots.ApproveLot(r.Context(), id, approved)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, lot)
}

// ==================== Live auction ====================

func (h *Handlers) handleActivateLot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	snap, err := h.Auction.ActivateLot(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, snap)
}

func (h *Handlers) handleActivateNext(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Auction.ActivateNext(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, snap)
}

func (h *Handlers) handleCloseLot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.Auction.CloseLot(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, result)
}

func (h *Handlers) handleWithdrawLot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.Auction.WithdrawLot(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, result)
}

func (h *Handlers) handleStartRound(w http.ResponseWriter, r *http.Request) {
	lots, err := h.Auction.StartNewRound(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, RoundResponse{Lots: lots})
}

func (h *Handlers) handlePause(w http.ResponseWriter, r *http.Request) {
	status, err := h.Auction.Pause(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, status)
}

func (h *Handlers) handleResume(w http.ResponseWriter, r *http.Request) {
	status, err := h.Auction.Resume(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, status)
}

func (h *Handlers) handleUnsold(w http.ResponseWriter, r *http.Request) {
	round, err := parseIntQuery(r, "round", 0)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	lots, err := h.Lots.ListUnsold(r.Context(), round)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, lots)
}

// ==================== Bidders ====================

func (h *Handlers) handleListBidders(w http.ResponseWriter, r *http.Request) {
	bidders, err := h.Bidders.ListBidders(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, bidders)
}

func (h *Handlers) handleCreateBidder(w http.ResponseWriter, r *http.Request) {
	var req BidderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	bidder, err := h.Bidders.CreateBidder(r.Context(), services.BidderInput(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondCreated(w, bidder)
}

func (h *Handlers) handleSetBidderActive(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req ActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Active == nil {
		h.respondError(w, r, BadRequest("active is required"))
		return
	}
	bidder, err := h.Bidders.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, bidder)
}

func (h *Handlers) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	token, err := h.Bidders.IssueToken(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondCreated(w, TokenResponse{BidderID: id, Token: token})
}

// ==================== Settings & Stats ====================

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	respondOK(w, StatsResponse{
		Auction:     h.Auction.Overview(),
		Connections: h.Hub.Stats(),
	})
}

func (h *Handlers) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Settings.AllSettings(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, settings)
}

func (h *Handlers) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req services.SettingsUpdate
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	settings, err := h.Settings.UpdateSettings(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, settings)
}

// handleJoinQR serves a PNG QR code of the public URL
func (h *Handlers) handleJoinQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Settings.JoinQR(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(png)
}
