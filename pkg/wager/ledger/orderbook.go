package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateOffer posts an order-book offer at fractional odds
// oddsNum:oddsDen ("risk oddsNum to win oddsDen"). The maker's entire
// stake is escrowed immediately, before any match exists.
func (e *Engine) CreateOffer(ctx context.Context, wagerID, makerID string, side Side, stakeAmount decimal.Decimal, oddsNum, oddsDen int64) (*Offer, error) {
	var created *Offer
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusOpen {
			return invalidStatef("create offer", w.Status)
		}
		if !side.Valid() {
			return validationf("side must be 1 or 2")
		}
		if !stakeAmount.IsPositive() {
			return validationf("stake amount must be positive")
		}
		if oddsNum <= 0 || oddsDen <= 0 {
			return validationf("odds %d:%d must have positive terms", oddsNum, oddsDen)
		}
		if err := e.debit(ctx, w.ID, makerID, stakeAmount, "offer_stake"); err != nil {
			return err
		}

		o := &Offer{
			ID:          uuid.NewString(),
			MakerID:     makerID,
			Side:        side,
			StakeAmount: stakeAmount,
			OddsNum:     oddsNum,
			OddsDen:     oddsDen,
			Remaining:   stakeAmount,
			CreatedAt:   time.Now(),
		}
		w.Offers = append(w.Offers, o)
		w.Book.add(side, stakeAmount)

		oc := *o
		created = &oc
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.onOffer != nil {
		e.onOffer(wagerID, created)
	}
	return created, nil
}

// AcceptOffer consumes takerAmount of an offer's remaining escrow. The
// taker implicitly bets the side opposite the maker's and supplies the
// counter-stake takerAmount × oddsDen / oddsNum from their own balance.
// Partial fills are supported; the remaining amount is re-validated here,
// under the wager's lock, so concurrent takers cannot oversell an offer.
func (e *Engine) AcceptOffer(ctx context.Context, wagerID, offerID, takerID string, takerAmount decimal.Decimal) (*OfferMatch, error) {
	var matched *OfferMatch
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusOpen {
			return invalidStatef("accept offer", w.Status)
		}
		o := w.offerByID(offerID)
		if o == nil {
			return ErrNotFound
		}
		if o.MakerID == takerID {
			return ErrSelfMatch
		}
		if !takerAmount.IsPositive() {
			return validationf("taker amount must be positive")
		}
		if takerAmount.GreaterThan(o.Remaining) {
			return validationf("taker amount %s exceeds remaining %s", takerAmount, o.Remaining)
		}

		counter := o.CounterStake(takerAmount)
		// At long odds a tiny takerAmount can round the counter-stake to
		// zero, letting the taker consume escrow while risking nothing.
		if !counter.IsPositive() {
			return validationf("taker amount %s too small for odds %d:%d", takerAmount, o.OddsNum, o.OddsDen)
		}
		if err := e.debit(ctx, w.ID, takerID, counter, "match_stake"); err != nil {
			return err
		}

		m := &OfferMatch{
			ID:                uuid.NewString(),
			TakerID:           takerID,
			TakerAmount:       takerAmount,
			MakerCounterStake: counter,
			MatchedAt:         time.Now(),
		}
		o.Matches = append(o.Matches, m)
		o.Remaining = o.Remaining.Sub(takerAmount)
		w.Book.add(o.Side.Opposite(), counter)

		mc := *m
		matched = &mc
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.onMatch != nil {
		e.onMatch(wagerID, offerID, matched)
	}
	return matched, nil
}

// CancelOffer returns an offer's unmatched remainder to the maker and
// closes the offer to further takers. Matches already formed are untouched
// and settle normally. A fully matched offer cannot be cancelled.
func (e *Engine) CancelOffer(ctx context.Context, wagerID, offerID, userID string) (decimal.Decimal, error) {
	var refunded decimal.Decimal
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusOpen {
			return invalidStatef("cancel offer", w.Status)
		}
		o := w.offerByID(offerID)
		if o == nil {
			return ErrNotFound
		}
		if o.MakerID != userID {
			return validationf("only the maker may cancel an offer")
		}
		if !o.Remaining.IsPositive() {
			return fmt.Errorf("%w: offer is fully matched", ErrInvalidState)
		}

		e.credit(ctx, w.ID, o.MakerID, o.Remaining, "offer_cancel")
		w.Book.sub(o.Side, o.Remaining)
		refunded = o.Remaining
		o.Remaining = decimal.Zero
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return refunded, nil
}
