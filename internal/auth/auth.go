package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/models"
)

const (
	CookieName    = "auctionhouse_session"
	SessionExpiry = 24 * time.Hour

	// TokenParam carries a bidder token where headers cannot be set (websocket upgrades)
	TokenParam = "token"
)

// Auction-themed words for password generation
var auctionWords = []string{
	"gavel", "paddle", "lot", "bidder", "reserve",
	"hammer", "round", "purse", "squad", "draft",
	"captain", "wicket", "striker", "keeper", "spinner",
	"opener", "closer", "rookie", "veteran",
}

// TokenAuthenticator resolves bidder bearer tokens
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

type ctxKey struct{}

// Auth handles admin sessions and bidder tokens
type Auth struct {
	password string
	clock    clockwork.Clock
	bidders  TokenAuthenticator
	sessions map[string]time.Time
	mu       sync.RWMutex
}

// New creates a new Auth instance with the given admin password
func New(password string, clock clockwork.Clock, bidders TokenAuthenticator) *Auth {
	return &Auth{
		password: password,
		clock:    clock,
		bidders:  bidders,
		sessions: make(map[string]time.Time),
	}
}

// GeneratePassword creates a random 3-word password
func GeneratePassword() string {
	words := make([]string, 3)
	for i := range words {
		idx := randomInt(len(auctionWords))
		words[i] = auctionWords[idx]
	}
	return strings.Join(words, "-")
}

// Login validates the password and returns a session token if valid
func (a *Auth) Login(password string) (string, bool) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return "", false
	}

	token := generateToken()
	a.mu.Lock()
	a.sessions[token] = a.clock.Now().Add(SessionExpiry)
	a.mu.Unlock()

	return token, true
}

// Logout invalidates a session token
func (a *Auth) Logout(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// ValidateSession checks if a session token is valid
func (a *Auth) ValidateSession(token string) bool {
	a.mu.RLock()
	expiry, exists := a.sessions[token]
	a.mu.RUnlock()

	if !exists {
		return false
	}

	if a.clock.Now().After(expiry) {
		a.mu.Lock()
		delete(a.sessions, token)
		a.mu.Unlock()
		return false
	}

	return true
}

// GetSessionFromRequest extracts and validates the admin session from a request
func (a *Auth) GetSessionFromRequest(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return a.ValidateSession(cookie.Value)
}

// bearerToken reads the Authorization header, falling back to the token query parameter
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get(TokenParam)
}

// Identify reports who made a request. An admin session wins over a bidder token.
func (a *Auth) Identify(r *http.Request) (models.Identity, error) {
	if a.GetSessionFromRequest(r) {
		return models.Identity{Role: models.RoleAdmin}, nil
	}
	token := bearerToken(r)
	if token == "" || a.bidders == nil {
		return models.Identity{}, errors.Unauthorized("no credentials")
	}
	id, err := a.bidders.Authenticate(r.Context(), token)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{Role: models.RoleBidder, BidderID: id}, nil
}

// WithIdentity stores an identity on a context
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity stored by the auth middleware
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(models.Identity)
	return id, ok
}

// RequireAuthAPI middleware for admin API endpoints (returns 401)
func (a *Auth) RequireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.GetSessionFromRequest(r) {
			ctx := WithIdentity(r.Context(), models.Identity{Role: models.RoleAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		unauthorized(w, "Unauthorized - please log in")
	})
}

// RequireBidder middleware for bidder endpoints. Storage failures while
// resolving the token are reported as 503, anything else as 401.
func (a *Auth) RequireBidder(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Identify(r)
		switch {
		case err == nil && id.Role == models.RoleBidder:
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		case errors.Is(err, errors.ErrStorage):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"code":"STORAGE_ERROR","error":"Could not verify token"}`))
		default:
			unauthorized(w, "Unauthorized - bidder token required")
		}
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"code":"UNAUTHORIZED","error":"` + msg + `"}`))
}

// SetSessionCookie sets the session cookie on the response
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionExpiry.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// generateToken creates a random session token
func generateToken() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// randomInt returns a random int in [0, max)
func randomInt(max int) int {
	bytes := make([]byte, 1)
	rand.Read(bytes)
	return int(bytes[0]) % max
}
