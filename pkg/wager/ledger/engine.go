package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is the append-only audit record written alongside every balance
// change. The wallet must persist it in the same atomic scope as the
// debit or credit it describes.
type Entry struct {
	WagerID string          `json:"wager_id"`
	UserID  string          `json:"user_id"`
	Kind    string          `json:"kind"` // "debit" or "credit"
	Reason  string          `json:"reason"`
	Amount  decimal.Decimal `json:"amount"`
	At      time.Time       `json:"at"`
}

// Wallet is the port through which the ledger moves user funds. The wallet
// owns spendable balances; the ledger never reads them, it only requests
// debits and credits. Debit returns ErrInsufficientFunds when the balance
// does not cover the amount.
type Wallet interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, entry Entry) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal, entry Entry) error
}

// commissionRate is the flat house commission charged on gross winnings.
// Refunds are never commissioned.
var commissionRate = decimal.NewFromFloat(0.01)

// commission returns the house cut of a gross payout, rounded up so the
// house never under-collects.
func commission(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(commissionRate).RoundCeil(2)
}

// wagerEntry pairs a wager with its serialization point. All mutations of
// one aggregate run under its mutex; different wagers proceed in parallel.
type wagerEntry struct {
	mu sync.Mutex
	w  *Wager
}

// Engine is the wagering ledger and settlement engine. All monetary
// effects go through the Wallet port; validation happens before the only
// fallible effect (the debit), so partial application is never observable.
type Engine struct {
	wallet Wallet

	mu     sync.RWMutex
	wagers map[string]*wagerEntry

	// Callbacks, fired after the mutation commits.
	onStake   func(wagerID string, s *PoolStake)
	onOffer   func(wagerID string, o *Offer)
	onMatch   func(wagerID, offerID string, m *OfferMatch)
	onSettled func(w *Wager)
	onClaim   func(c Claim)
}

// Claim describes a paid-out claim for callbacks and API responses.
type Claim struct {
	WagerID    string          `json:"wager_id"`
	UserID     string          `json:"user_id"`
	Mode       string          `json:"mode"` // "pool" or "book"
	Net        decimal.Decimal `json:"net"`
	Commission decimal.Decimal `json:"commission"`
}

// NewEngine creates a ledger engine backed by the given wallet.
func NewEngine(wallet Wallet) *Engine {
	return &Engine{
		wallet: wallet,
		wagers: make(map[string]*wagerEntry),
	}
}

// OnStake sets a callback for accepted pool stakes.
func (e *Engine) OnStake(fn func(wagerID string, s *PoolStake)) { e.onStake = fn }

// OnOffer sets a callback for created offers.
func (e *Engine) OnOffer(fn func(wagerID string, o *Offer)) { e.onOffer = fn }

// OnMatch sets a callback for offer acceptances.
func (e *Engine) OnMatch(fn func(wagerID, offerID string, m *OfferMatch)) { e.onMatch = fn }

// OnSettled sets a callback for terminal status transitions.
func (e *Engine) OnSettled(fn func(w *Wager)) { e.onSettled = fn }

// OnClaim sets a callback for paid-out claims.
func (e *Engine) OnClaim(fn func(c Claim)) { e.onClaim = fn }

// CreateWagerParams carries everything needed to open a wager.
type CreateWagerParams struct {
	Match     MatchRef
	CreatorID string
	MinStake  decimal.Decimal
	MaxStake  decimal.Decimal
}

// CreateWager opens a new wager for a match that has not started.
func (e *Engine) CreateWager(p CreateWagerParams) (*Wager, error) {
	if p.Match.MatchID == "" {
		return nil, validationf("match id is required")
	}
	if p.Match.Contestant1.ID == "" || p.Match.Contestant2.ID == "" {
		return nil, validationf("both contestants are required")
	}
	if p.Match.Contestant1.ID == p.Match.Contestant2.ID {
		return nil, validationf("contestants must be distinct")
	}
	if !p.MinStake.IsPositive() || !p.MaxStake.IsPositive() {
		return nil, validationf("stake limits must be positive")
	}
	if p.MinStake.GreaterThan(p.MaxStake) {
		return nil, validationf("minimum stake %s exceeds maximum %s", p.MinStake, p.MaxStake)
	}

	w := &Wager{
		ID:        uuid.NewString(),
		Match:     p.Match,
		CreatorID: p.CreatorID,
		Status:    StatusOpen,
		Winner:    WinnerUndetermined,
		MinStake:  p.MinStake,
		MaxStake:  p.MaxStake,
		CreatedAt: time.Now(),
	}

	e.mu.Lock()
	e.wagers[w.ID] = &wagerEntry{w: w}
	e.mu.Unlock()

	return w.snapshot(), nil
}

// GetWager returns a copy of the wager.
func (e *Engine) GetWager(wagerID string) (*Wager, error) {
	entry, err := e.entry(wagerID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.w.snapshot(), nil
}

// ListActive returns copies of all wagers with status open or in_progress,
// oldest first.
func (e *Engine) ListActive() []*Wager {
	return e.list(func(w *Wager) bool {
		return w.Status == StatusOpen || w.Status == StatusInProgress
	})
}

// ListAll returns copies of every wager, oldest first.
func (e *Engine) ListAll() []*Wager {
	return e.list(func(*Wager) bool { return true })
}

// ListOffers returns copies of a wager's offers.
func (e *Engine) ListOffers(wagerID string) ([]*Offer, error) {
	w, err := e.GetWager(wagerID)
	if err != nil {
		return nil, err
	}
	return w.Offers, nil
}

func (e *Engine) list(keep func(*Wager) bool) []*Wager {
	e.mu.RLock()
	entries := make([]*wagerEntry, 0, len(e.wagers))
	for _, entry := range e.wagers {
		entries = append(entries, entry)
	}
	e.mu.RUnlock()

	out := make([]*Wager, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		if keep(entry.w) {
			out = append(out, entry.w.snapshot())
		}
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (e *Engine) entry(wagerID string) (*wagerEntry, error) {
	e.mu.RLock()
	entry, ok := e.wagers[wagerID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// withWager runs fn with the wager's serialization point held.
func (e *Engine) withWager(wagerID string, fn func(w *Wager) error) error {
	entry, err := e.entry(wagerID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.w)
}

// --- Settlement transitions ---

// MarkInProgress moves an open wager to in_progress. Calling it on a wager
// that is already in progress is a no-op, which keeps the resolver sweep
// idempotent.
func (e *Engine) MarkInProgress(wagerID string) error {
	return e.withWager(wagerID, func(w *Wager) error {
		switch w.Status {
		case StatusOpen:
			w.Status = StatusInProgress
			return nil
		case StatusInProgress:
			return nil
		default:
			return invalidStatef("mark in progress", w.Status)
		}
	})
}

// Complete resolves a wager with the given outcome. WinnerVoid means the
// match finished with no attributable winner; participants then claim
// refunds at original stake. Status never moves backward, so completing a
// completed wager fails with ErrInvalidState.
func (e *Engine) Complete(wagerID string, winner Winner) error {
	if winner == WinnerUndetermined {
		return validationf("cannot complete without an outcome")
	}
	var settled *Wager
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusOpen && w.Status != StatusInProgress {
			return invalidStatef("complete", w.Status)
		}
		now := time.Now()
		w.Status = StatusCompleted
		w.Winner = winner
		w.ResolvedAt = &now
		settled = w.snapshot()
		return nil
	})
	if err == nil && e.onSettled != nil {
		e.onSettled(settled)
	}
	return err
}

// CompleteUnresolvable voids a wager whose source match can never be
// resolved (for example, the tournament ended before the reference could
// be matched). Unlike a plain void outcome it refunds every participant
// proactively instead of waiting for claims.
func (e *Engine) CompleteUnresolvable(ctx context.Context, wagerID, reason string) error {
	var settled *Wager
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusOpen && w.Status != StatusInProgress {
			return invalidStatef("void", w.Status)
		}
		now := time.Now()
		w.Status = StatusCompleted
		w.Winner = WinnerVoid
		w.ResolvedAt = &now
		w.DisputeReason = reason
		e.refundAll(ctx, w)
		settled = w.snapshot()
		return nil
	})
	if err == nil && e.onSettled != nil {
		e.onSettled(settled)
	}
	return err
}

// AdminCancel cancels a wager from open or in_progress, voids the outcome
// and immediately refunds every pool stake. Order-book participants are
// refunded through the normal void claim path.
func (e *Engine) AdminCancel(ctx context.Context, wagerID, reason string) error {
	var settled *Wager
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusOpen && w.Status != StatusInProgress {
			return invalidStatef("cancel", w.Status)
		}
		now := time.Now()
		w.Status = StatusCancelled
		w.Winner = WinnerVoid
		w.ResolvedAt = &now
		w.DisputeReason = reason
		for _, s := range w.Stakes {
			if s.Claimed {
				continue
			}
			e.credit(ctx, w.ID, s.UserID, s.Amount, "pool_refund")
			s.Claimed = true
			w.Pool.sub(s.Side, s.Amount)
		}
		settled = w.snapshot()
		return nil
	})
	if err == nil && e.onSettled != nil {
		e.onSettled(settled)
	}
	return err
}

// ReportDispute marks a wager disputed. Only a participant or the creator
// may report, and only before the wager is terminal. Disputed is terminal
// for automated processing; resolving it is a human operator's job.
func (e *Engine) ReportDispute(wagerID, userID, reason string) error {
	return e.withWager(wagerID, func(w *Wager) error {
		if w.Status.Terminal() {
			return invalidStatef("dispute", w.Status)
		}
		if userID != w.CreatorID && !w.participant(userID) {
			return ErrNoParticipation
		}
		w.Status = StatusDisputed
		w.Disputed = true
		w.DisputeReason = reason
		return nil
	})
}

// refundAll returns every unclaimed amount to its owner at original stake:
// pool stakes, unmatched offer remainders, and both halves of every match.
// Caller holds the wager lock.
func (e *Engine) refundAll(ctx context.Context, w *Wager) {
	for _, s := range w.Stakes {
		if s.Claimed {
			continue
		}
		e.credit(ctx, w.ID, s.UserID, s.Amount, "pool_refund")
		s.Claimed = true
		w.Pool.sub(s.Side, s.Amount)
	}
	for _, o := range w.Offers {
		if !o.Claimed && o.Remaining.IsPositive() {
			e.credit(ctx, w.ID, o.MakerID, o.Remaining, "offer_refund")
			w.Book.sub(o.Side, o.Remaining)
			o.Remaining = decimal.Zero
		}
		o.Claimed = true
		for _, m := range o.Matches {
			if !m.MakerClaimed {
				e.credit(ctx, w.ID, o.MakerID, m.TakerAmount, "match_refund")
				w.Book.sub(o.Side, m.TakerAmount)
				m.MakerClaimed = true
			}
			if !m.TakerClaimed {
				e.credit(ctx, w.ID, m.TakerID, m.MakerCounterStake, "match_refund")
				w.Book.sub(o.Side.Opposite(), m.MakerCounterStake)
				m.TakerClaimed = true
			}
		}
	}
}

// credit moves money to a user with its audit entry. Credits against the
// in-scope wallet cannot legitimately fail; a backend fault here is a
// wiring error, not a domain outcome, so it is deliberately not mapped to
// the domain error kinds.
func (e *Engine) credit(ctx context.Context, wagerID, userID string, amount decimal.Decimal, reason string) {
	_ = e.wallet.Credit(ctx, userID, amount, Entry{
		WagerID: wagerID,
		UserID:  userID,
		Kind:    "credit",
		Reason:  reason,
		Amount:  amount,
		At:      time.Now(),
	})
}

func (e *Engine) debit(ctx context.Context, wagerID, userID string, amount decimal.Decimal, reason string) error {
	return e.wallet.Debit(ctx, userID, amount, Entry{
		WagerID: wagerID,
		UserID:  userID,
		Kind:    "debit",
		Reason:  reason,
		Amount:  amount,
		At:      time.Now(),
	})
}
