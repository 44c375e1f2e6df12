package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.log != nil && h.log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

func (h *Handlers) corsHandler() func(http.Handler) http.Handler {
	origins := h.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedOrigins:   origins,
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: origins[0] != "*",
	})
	return c.Handler
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(h.corsHandler())

	// WebSocket stays outside the timeout middleware
	r.Get("/ws", h.Hub.ServeWs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		// Spectator board
		if h.staticServer != nil {
			r.Handle("/*", h.staticServer)
		}

		// Public API
		r.Get("/api/auction/status", h.handleAuctionStatus)
		r.Get("/api/lots", h.handleListLots)
		r.Get("/api/lots/{id}", h.handleGetLot)
		r.Get("/api/lots/{id}/status", h.handleLotStatus)
		r.Get("/api/lots/{id}/bids", h.handleLotBids)
		r.Get("/api/rounds", h.handleRounds)

		// Auth routes (public)
		r.Post("/api/admin/login", h.handleLogin)
		r.Post("/api/admin/logout", h.handleLogout)

		// Bidder API
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireBidder)
			r.Post("/api/bids", h.handlePlaceBid)
			r.Get("/api/me", h.handleMe)
		})

		// Admin API (protected)
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuthAPI)

			// Lots
			r.Post("/api/admin/lots", h.handleCreateLot)
			r.Put("/api/admin/lots/{id}", h.handleUpdateLot)
			r.Delete("/api/admin/lots/{id}", h.handleDeleteLot)
			r.Post("/api/admin/lots/{id}/approve", h.handleApproveLot)

			// Live auction control
			r.Post("/api/admin/lots/next", h.handleActivateNext)
			r.Post("/api/admin/lots/{id}/activate", h.handleActivateLot)
			r.Post("/api/admin/lots/{id}/close", h.handleCloseLot)
			r.Post("/api/admin/lots/{id}/withdraw", h.handleWithdrawLot)
			r.Post("/api/admin/rounds", h.handleStartRound)
			r.Post("/api/admin/auction/pause", h.handlePause)
			r.Post("/api/admin/auction/resume", h.handleResume)
			r.Get("/api/admin/unsold", h.handleUnsold)

			// Bidders
			r.Get("/api/admin/bidders", h.handleListBidders)
			r.Post("/api/admin/bidders", h.handleCreateBidder)
			r.Put("/api/admin/bidders/{id}/active", h.handleSetBidderActive)
			r.Post("/api/admin/bidders/{id}/token", h.handleIssueToken)

			// Settings & Stats
			r.Get("/api/admin/stats", h.handleStats)
			r.Get("/api/admin/settings", h.handleGetSettings)
			r.Put("/api/admin/settings", h.handleUpdateSettings)
			r.Get("/api/admin/join-qr", h.handleJoinQR)
		})
	})

	return r
}
