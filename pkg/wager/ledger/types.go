// Package ledger implements the wagering ledger for two-contestant esports
// matches: a pari-mutuel pool mode and a peer-to-peer order-book mode sharing
// one wager aggregate, with settlement and idempotent claim payouts.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one of the two contestants of a match.
type Side int

const (
	Side1 Side = 1
	Side2 Side = 2
)

// Valid reports whether the side is one of the two contestants.
func (s Side) Valid() bool {
	return s == Side1 || s == Side2
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Side1 {
		return Side2
	}
	return Side1
}

func (s Side) String() string {
	switch s {
	case Side1:
		return "side1"
	case Side2:
		return "side2"
	default:
		return "invalid"
	}
}

// Status is the lifecycle state of a wager. It only ever moves forward.
type Status int

const (
	StatusOpen Status = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
	StatusDisputed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the wager has reached a final state for
// automated processing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDisputed
}

// Winner is the resolved outcome of a wager. Undetermined means the match
// has not been resolved yet; Void means resolved with no winning side and
// all stakes refunded. The two are deliberately distinct values.
type Winner int

const (
	WinnerUndetermined Winner = iota
	WinnerSide1
	WinnerSide2
	WinnerVoid
)

// WinnerForSide converts a contestant side into its winner value.
func WinnerForSide(s Side) Winner {
	if s == Side2 {
		return WinnerSide2
	}
	return WinnerSide1
}

// WinningSide returns the side corresponding to the winner value.
// The second return is false for Undetermined and Void.
func (w Winner) WinningSide() (Side, bool) {
	switch w {
	case WinnerSide1:
		return Side1, true
	case WinnerSide2:
		return Side2, true
	default:
		return 0, false
	}
}

func (w Winner) String() string {
	switch w {
	case WinnerUndetermined:
		return "undetermined"
	case WinnerSide1:
		return "side1"
	case WinnerSide2:
		return "side2"
	case WinnerVoid:
		return "void"
	default:
		return "unknown"
	}
}

// Contestant is one of the two participants of the underlying match.
type Contestant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MatchRef identifies the real-world match a wager is bound to.
// It is immutable once the wager is created.
type MatchRef struct {
	TournamentID string     `json:"tournament_id"`
	EventID      string     `json:"event_id"`
	PhaseID      string     `json:"phase_id"`
	MatchID      string     `json:"match_id"`
	Contestant1  Contestant `json:"contestant1"`
	Contestant2  Contestant `json:"contestant2"`
}

// Contestant returns the contestant on the given side.
func (m MatchRef) Contestant(s Side) Contestant {
	if s == Side2 {
		return m.Contestant2
	}
	return m.Contestant1
}

// Totals is a per-side money ledger. The pari-mutuel pool and the
// order-book escrow each keep their own Totals; they are merged only for
// display. Invariant: Total == Side1 + Side2.
type Totals struct {
	Total decimal.Decimal `json:"total"`
	Side1 decimal.Decimal `json:"side1"`
	Side2 decimal.Decimal `json:"side2"`
}

// Side returns the amount attributed to one side.
func (t Totals) Side(s Side) decimal.Decimal {
	if s == Side2 {
		return t.Side2
	}
	return t.Side1
}

func (t *Totals) add(s Side, amount decimal.Decimal) {
	t.Total = t.Total.Add(amount)
	if s == Side2 {
		t.Side2 = t.Side2.Add(amount)
	} else {
		t.Side1 = t.Side1.Add(amount)
	}
}

func (t *Totals) sub(s Side, amount decimal.Decimal) {
	t.add(s, amount.Neg())
}

// Merge returns the element-wise sum of two ledgers.
func (t Totals) Merge(o Totals) Totals {
	return Totals{
		Total: t.Total.Add(o.Total),
		Side1: t.Side1.Add(o.Side1),
		Side2: t.Side2.Add(o.Side2),
	}
}

// PoolStake is a single pari-mutuel stake. A user may hold at most one
// per wager.
type PoolStake struct {
	ID       string          `json:"id"`
	UserID   string          `json:"user_id"`
	Side     Side            `json:"side"`
	Amount   decimal.Decimal `json:"amount"`
	Claimed  bool            `json:"claimed"`
	PlacedAt time.Time       `json:"placed_at"`
}

// OfferMatch is a taker's (partial) acceptance of an offer. Immutable once
// created except for the claim markers. The maker and the taker each own a
// distinct part of the pot, so each gets their own claim marker; a shared
// flag would let one party's void refund swallow the other's.
type OfferMatch struct {
	ID                string          `json:"id"`
	TakerID           string          `json:"taker_id"`
	TakerAmount       decimal.Decimal `json:"taker_amount"`
	MakerCounterStake decimal.Decimal `json:"maker_counter_stake"`
	MakerClaimed      bool            `json:"maker_claimed"`
	TakerClaimed      bool            `json:"taker_claimed"`
	MatchedAt         time.Time       `json:"matched_at"`
}

// Pot is the full amount at stake in this match.
func (m *OfferMatch) Pot() decimal.Decimal {
	return m.TakerAmount.Add(m.MakerCounterStake)
}

// Offer is a maker's order-book offer at self-chosen fractional odds
// "risk OddsNum to win OddsDen". The full stake is escrowed on creation;
// Remaining shrinks as takers accept and never grows back.
type Offer struct {
	ID          string          `json:"id"`
	MakerID     string          `json:"maker_id"`
	Side        Side            `json:"side"`
	StakeAmount decimal.Decimal `json:"stake_amount"`
	OddsNum     int64           `json:"odds_num"`
	OddsDen     int64           `json:"odds_den"`
	Remaining   decimal.Decimal `json:"remaining"`
	Claimed     bool            `json:"claimed"`
	Matches     []*OfferMatch   `json:"matches,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CounterStake returns the taker contribution required to consume
// takerAmount of the offer: takerAmount × OddsDen / OddsNum.
func (o *Offer) CounterStake(takerAmount decimal.Decimal) decimal.Decimal {
	return takerAmount.
		Mul(decimal.NewFromInt(o.OddsDen)).
		Div(decimal.NewFromInt(o.OddsNum)).
		Round(2)
}

// Wager is the aggregate root: one bettable match and its full betting
// state. The pari-mutuel pool and the order-book escrow are tracked in
// separate ledgers and merged only for display.
type Wager struct {
	ID        string   `json:"id"`
	Match     MatchRef `json:"match"`
	CreatorID string   `json:"creator_id"`

	Status Status `json:"status"`
	Winner Winner `json:"winner"`

	MinStake decimal.Decimal `json:"min_stake"`
	MaxStake decimal.Decimal `json:"max_stake"`

	Pool Totals `json:"pool"` // pari-mutuel stakes
	Book Totals `json:"book"` // order-book escrow

	Stakes []*PoolStake `json:"stakes,omitempty"`
	Offers []*Offer     `json:"offers,omitempty"`

	Disputed      bool   `json:"disputed"`
	DisputeReason string `json:"dispute_reason,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// CombinedPool merges the pari-mutuel and order-book ledgers for display.
func (w *Wager) CombinedPool() Totals {
	return w.Pool.Merge(w.Book)
}

func (w *Wager) stakeBy(userID string) *PoolStake {
	for _, s := range w.Stakes {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

func (w *Wager) offerByID(offerID string) *Offer {
	for _, o := range w.Offers {
		if o.ID == offerID {
			return o
		}
	}
	return nil
}

// participant reports whether the user placed a stake, made an offer, or
// took a match on this wager.
func (w *Wager) participant(userID string) bool {
	if w.stakeBy(userID) != nil {
		return true
	}
	for _, o := range w.Offers {
		if o.MakerID == userID {
			return true
		}
		for _, m := range o.Matches {
			if m.TakerID == userID {
				return true
			}
		}
	}
	return false
}

// snapshot returns a deep copy safe to hand to callers.
func (w *Wager) snapshot() *Wager {
	cp := *w
	if w.ResolvedAt != nil {
		t := *w.ResolvedAt
		cp.ResolvedAt = &t
	}
	cp.Stakes = make([]*PoolStake, len(w.Stakes))
	for i, s := range w.Stakes {
		sc := *s
		cp.Stakes[i] = &sc
	}
	cp.Offers = make([]*Offer, len(w.Offers))
	for i, o := range w.Offers {
		oc := *o
		oc.Matches = make([]*OfferMatch, len(o.Matches))
		for j, m := range o.Matches {
			mc := *m
			oc.Matches[j] = &mc
		}
		cp.Offers[i] = &oc
	}
	return &cp
}
