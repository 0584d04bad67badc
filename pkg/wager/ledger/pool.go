package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaceStake accepts a pari-mutuel stake. The user's funds are debited and
// the stake joins the side's pool in one atomic step; a user may hold at
// most one pool stake per wager.
func (e *Engine) PlaceStake(ctx context.Context, wagerID, userID string, side Side, amount decimal.Decimal) (*PoolStake, error) {
	var placed *PoolStake
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusOpen {
			return invalidStatef("place stake", w.Status)
		}
		if !side.Valid() {
			return validationf("side must be 1 or 2")
		}
		if amount.LessThan(w.MinStake) {
			return validationf("stake %s below minimum %s", amount, w.MinStake)
		}
		if amount.GreaterThan(w.MaxStake) {
			return validationf("stake %s above maximum %s", amount, w.MaxStake)
		}
		if w.stakeBy(userID) != nil {
			return ErrDuplicateParticipation
		}
		if err := e.debit(ctx, w.ID, userID, amount, "pool_stake"); err != nil {
			return err
		}

		s := &PoolStake{
			ID:       uuid.NewString(),
			UserID:   userID,
			Side:     side,
			Amount:   amount,
			PlacedAt: time.Now(),
		}
		w.Stakes = append(w.Stakes, s)
		w.Pool.add(side, amount)

		sc := *s
		placed = &sc
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.onStake != nil {
		e.onStake(wagerID, placed)
	}
	return placed, nil
}

// Odds returns the displayed pari-mutuel odds for a side:
// totalPool / pool[side]. The second return is false while the side's pool
// is empty, in which case there are no odds to show yet.
func (e *Engine) Odds(wagerID string, side Side) (decimal.Decimal, bool, error) {
	var odds decimal.Decimal
	var ok bool
	err := e.withWager(wagerID, func(w *Wager) error {
		if !side.Valid() {
			return validationf("side must be 1 or 2")
		}
		sidePool := w.Pool.Side(side)
		if sidePool.IsZero() {
			return nil
		}
		odds = w.Pool.Total.Div(sidePool)
		ok = true
		return nil
	})
	return odds, ok, err
}

// PotentialWinnings returns the gross payout the user's pool stake would
// earn if its side won, computed against the current pools. It is not
// locked in: other stakes keep arriving until resolution, and the claim
// uses the pools frozen at that point.
func (e *Engine) PotentialWinnings(wagerID, userID string) (decimal.Decimal, error) {
	var gross decimal.Decimal
	err := e.withWager(wagerID, func(w *Wager) error {
		s := w.stakeBy(userID)
		if s == nil {
			return ErrNoParticipation
		}
		gross = poolPayout(s.Amount, w.Pool.Side(s.Side), w.Pool.Total)
		return nil
	})
	return gross, err
}

// poolPayout computes (stake / winningPool) × totalPool, multiplying first
// to keep the division late, and rounds down in the user's direction.
func poolPayout(stake, winningPool, totalPool decimal.Decimal) decimal.Decimal {
	if winningPool.IsZero() {
		return decimal.Zero
	}
	return stake.Mul(totalPool).Div(winningPool).RoundDown(2)
}
