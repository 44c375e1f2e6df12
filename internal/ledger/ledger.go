// Package ledger tracks the funds each bidder has reserved against lots.
//
// A reservation (hold) is keyed by lot and bidder. For every account
// Ceiling - Committed = Available and Available never goes negative.
// Preview methods return the account a mutation would produce without
// applying it, so callers can persist first and apply afterwards.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/models"
)

type holdKey struct {
	lotID    string
	bidderID string
}

// Ledger is safe for concurrent use
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*models.BidderAccount
	holds    map[holdKey]decimal.Decimal
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		accounts: make(map[string]*models.BidderAccount),
		holds:    make(map[holdKey]decimal.Decimal),
	}
}

// Open loads an account into the ledger. An account that is already open
// is left untouched and false is returned.
func (l *Ledger) Open(acct models.BidderAccount) (bool, error) {
	if err := checkInvariant(acct); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[acct.ID]; ok {
		return false, nil
	}
	a := acct
	l.accounts[acct.ID] = &a
	return true, nil
}

// Has reports whether the bidder's account is open
func (l *Ledger) Has(bidderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[bidderID]
	return ok
}

// Account returns a copy of the bidder's account
func (l *Ledger) Account(bidderID string) (models.BidderAccount, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[bidderID]
	if !ok {
		return models.BidderAccount{}, false
	}
	return *a, true
}

// Held returns the amount reserved by the bidder for the lot
func (l *Ledger) Held(lotID, bidderID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holds[holdKey{lotID, bidderID}]
}

// Restore registers a hold that is already reflected in the account's
// committed amount, as happens when a live lot is recovered from storage.
func (l *Ledger) Restore(lotID, bidderID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[bidderID]
	if !ok {
		return errors.NotFoundf("bidder %s is not open in the ledger", bidderID)
	}
	held := decimal.Zero
	for k, v := range l.holds {
		if k.bidderID == bidderID && k.lotID != lotID {
			held = held.Add(v)
		}
	}
	if held.Add(amount).GreaterThan(a.Committed) {
		return errors.InvalidStatef("bidder %s has %s committed, cannot restore hold of %s", bidderID, a.Committed, amount)
	}
	l.holds[holdKey{lotID, bidderID}] = amount
	return nil
}

// PreviewReserve returns the account Reserve would produce
func (l *Ledger) PreviewReserve(lotID, bidderID string, amount decimal.Decimal) (models.BidderAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, _, err := l.planReserve(lotID, bidderID, amount)
	return next, err
}

// Reserve holds amount for the bidder on the lot. An existing hold for the
// same pair is replaced, so only the difference has to be available.
// On failure nothing changes.
func (l *Ledger) Reserve(lotID, bidderID string, amount decimal.Decimal) (models.BidderAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, key, err := l.planReserve(lotID, bidderID, amount)
	if err != nil {
		return models.BidderAccount{}, err
	}
	*l.accounts[bidderID] = next
	l.holds[key] = amount
	return next, nil
}

func (l *Ledger) planReserve(lotID, bidderID string, amount decimal.Decimal) (models.BidderAccount, holdKey, error) {
	key := holdKey{lotID, bidderID}
	if !amount.IsPositive() {
		return models.BidderAccount{}, key, errors.Validationf("reservation must be positive, got %s", amount)
	}
	a, ok := l.accounts[bidderID]
	if !ok {
		return models.BidderAccount{}, key, errors.NotFoundf("bidder %s is not open in the ledger", bidderID)
	}

	delta := amount.Sub(l.holds[key])
	if delta.GreaterThan(a.Available()) {
		return models.BidderAccount{}, key, errors.InsufficientFundsf(
			"insufficient funds: %s available, %s required", a.Available(), delta)
	}

	next := *a
	next.Committed = next.Committed.Add(delta)
	if err := checkInvariant(next); err != nil {
		return models.BidderAccount{}, key, err
	}
	return next, key, nil
}

// PreviewRelease returns the account and amount Release would produce
func (l *Ledger) PreviewRelease(lotID, bidderID string) (models.BidderAccount, decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.planRelease(lotID, bidderID)
}

// Release returns the bidder's hold on the lot to available funds. Releasing
// a pair that holds nothing is a no-op and reports a zero amount.
func (l *Ledger) Release(lotID, bidderID string) (models.BidderAccount, decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, released, err := l.planRelease(lotID, bidderID)
	if err != nil {
		return models.BidderAccount{}, decimal.Zero, err
	}
	*l.accounts[bidderID] = next
	delete(l.holds, holdKey{lotID, bidderID})
	return next, released, nil
}

func (l *Ledger) planRelease(lotID, bidderID string) (models.BidderAccount, decimal.Decimal, error) {
	a, ok := l.accounts[bidderID]
	if !ok {
		return models.BidderAccount{}, decimal.Zero, errors.NotFoundf("bidder %s is not open in the ledger", bidderID)
	}
	held := l.holds[holdKey{lotID, bidderID}]

	next := *a
	next.Committed = next.Committed.Sub(held)
	if err := checkInvariant(next); err != nil {
		return models.BidderAccount{}, decimal.Zero, err
	}
	return next, held, nil
}

// PreviewCommit returns the account and amount Commit would produce
func (l *Ledger) PreviewCommit(lotID, bidderID string) (models.BidderAccount, decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.planCommit(lotID, bidderID)
}

// Commit turns the bidder's hold on the lot into a permanent deduction from
// the ceiling. Available funds do not change.
func (l *Ledger) Commit(lotID, bidderID string) (models.BidderAccount, decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, amount, err := l.planCommit(lotID, bidderID)
	if err != nil {
		return models.BidderAccount{}, decimal.Zero, err
	}
	*l.accounts[bidderID] = next
	delete(l.holds, holdKey{lotID, bidderID})
	return next, amount, nil
}

func (l *Ledger) planCommit(lotID, bidderID string) (models.BidderAccount, decimal.Decimal, error) {
	a, ok := l.accounts[bidderID]
	if !ok {
		return models.BidderAccount{}, decimal.Zero, errors.NotFoundf("bidder %s is not open in the ledger", bidderID)
	}
	held, ok := l.holds[holdKey{lotID, bidderID}]
	if !ok {
		return models.BidderAccount{}, decimal.Zero, errors.InvalidStatef("bidder %s holds nothing on lot %s", bidderID, lotID)
	}

	next := *a
	next.Ceiling = next.Ceiling.Sub(held)
	next.Committed = next.Committed.Sub(held)
	next.Spent = next.Spent.Add(held)
	if err := checkInvariant(next); err != nil {
		return models.BidderAccount{}, decimal.Zero, err
	}
	return next, held, nil
}

func checkInvariant(a models.BidderAccount) error {
	if a.Committed.IsNegative() {
		return errors.Internalf("ledger invariant broken for %s: committed %s is negative", a.ID, a.Committed)
	}
	if a.Available().IsNegative() {
		return errors.Internalf("ledger invariant broken for %s: available %s is negative", a.ID, a.Available())
	}
	return nil
}
