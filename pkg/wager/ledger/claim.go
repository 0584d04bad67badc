package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// houseAccount receives the 1% commission withheld from gross winnings.
const houseAccount = "house"

// ClaimPool pays out the caller's pari-mutuel stake on a completed wager.
// Winnings are (stake / winningPool) × totalPool against the pools frozen
// at resolution, minus the 1% commission; a void outcome refunds the
// original stake uncommissioned. The stake is marked claimed atomically
// with the credit, so a second claim fails with ErrAlreadyClaimed.
func (e *Engine) ClaimPool(ctx context.Context, wagerID, userID string) (decimal.Decimal, error) {
	var net, cut decimal.Decimal
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusCompleted && w.Status != StatusCancelled {
			return invalidStatef("claim", w.Status)
		}
		if w.Winner == WinnerUndetermined {
			return invalidStatef("claim unresolved wager", w.Status)
		}
		s := w.stakeBy(userID)
		if s == nil {
			return ErrNoParticipation
		}
		if s.Claimed {
			return ErrAlreadyClaimed
		}

		if w.Winner == WinnerVoid {
			e.credit(ctx, w.ID, userID, s.Amount, "pool_refund")
			s.Claimed = true
			w.Pool.sub(s.Side, s.Amount)
			net = s.Amount
			return nil
		}

		winningSide, _ := w.Winner.WinningSide()
		if s.Side != winningSide {
			return ErrNotWinner
		}

		gross := poolPayout(s.Amount, w.Pool.Side(winningSide), w.Pool.Total)
		cut = commission(gross)
		net = gross.Sub(cut)

		e.credit(ctx, w.ID, userID, net, "pool_winnings")
		e.credit(ctx, w.ID, houseAccount, cut, "commission")
		s.Claimed = true
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if e.onClaim != nil {
		e.onClaim(Claim{WagerID: wagerID, UserID: userID, Mode: "pool", Net: net, Commission: cut})
	}
	return net, nil
}

// ClaimOrderBook settles everything the caller is owed across the wager's
// order book in one call: unmatched offer remainders (escrow return,
// never commissioned), won match pots (commissioned at 1%), and, on a void
// outcome, each party's half of every pot at original stake. The payable
// set is computed first and the aggregate is mutated only once the claim
// is known to succeed; a failed claim leaves no state change behind. A
// loser always gets ErrNotWinner, a paid-out winner's repeat call gets
// ErrNothingToClaim.
func (e *Engine) ClaimOrderBook(ctx context.Context, wagerID, userID string) (decimal.Decimal, error) {
	var net, totalCut decimal.Decimal
	err := e.withWager(wagerID, func(w *Wager) error {
		if w.Status != StatusCompleted && w.Status != StatusCancelled {
			return invalidStatef("claim", w.Status)
		}
		if w.Winner == WinnerUndetermined {
			return invalidStatef("claim unresolved wager", w.Status)
		}
		if !w.bookParticipant(userID) {
			return ErrNoParticipation
		}

		winningSide, decided := w.Winner.WinningSide()

		// First pass: decide what is payable without touching state.
		refunds := decimal.Zero // escrow returns, never commissioned
		gross := decimal.Zero   // winnings, commissioned
		lost := false

		type matchRef struct {
			o *Offer
			m *OfferMatch
		}
		var ownOffers []*Offer
		var voidAsMaker, voidAsTaker, won []matchRef

		for _, o := range w.Offers {
			if o.MakerID == userID && !o.Claimed {
				ownOffers = append(ownOffers, o)
				refunds = refunds.Add(o.Remaining)
			}

			for _, m := range o.Matches {
				maker := o.MakerID == userID
				taker := m.TakerID == userID
				switch {
				case !decided: // void: each party recovers their own half
					if maker && !m.MakerClaimed {
						refunds = refunds.Add(m.TakerAmount)
						voidAsMaker = append(voidAsMaker, matchRef{o, m})
					}
					if taker && !m.TakerClaimed {
						refunds = refunds.Add(m.MakerCounterStake)
						voidAsTaker = append(voidAsTaker, matchRef{o, m})
					}
				case o.Side == winningSide:
					if maker && !m.MakerClaimed {
						gross = gross.Add(m.Pot())
						won = append(won, matchRef{o, m})
					}
					if taker {
						lost = true
					}
				default: // taker's implied side won
					if taker && !m.TakerClaimed {
						gross = gross.Add(m.Pot())
						won = append(won, matchRef{o, m})
					}
					if maker {
						lost = true
					}
				}
			}
		}

		if refunds.IsZero() && gross.IsZero() {
			// Losing is judged by side, not by claim flags, so the error
			// kind does not depend on whether the winner claimed first.
			if lost {
				return ErrNotWinner
			}
			return ErrNothingToClaim
		}

		// Second pass: the claim succeeds, apply every effect.
		for _, o := range ownOffers {
			if o.Remaining.IsPositive() {
				w.Book.sub(o.Side, o.Remaining)
				o.Remaining = decimal.Zero
			}
			o.Claimed = true
		}
		for _, r := range voidAsMaker {
			w.Book.sub(r.o.Side, r.m.TakerAmount)
			r.m.MakerClaimed = true
		}
		for _, r := range voidAsTaker {
			w.Book.sub(r.o.Side.Opposite(), r.m.MakerCounterStake)
			r.m.TakerClaimed = true
		}
		for _, r := range won {
			r.m.MakerClaimed = true
			r.m.TakerClaimed = true
		}

		cut := commission(gross)
		net = refunds.Add(gross).Sub(cut)
		totalCut = cut

		e.credit(ctx, w.ID, userID, net, "book_payout")
		if cut.IsPositive() {
			e.credit(ctx, w.ID, houseAccount, cut, "commission")
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if e.onClaim != nil {
		e.onClaim(Claim{WagerID: wagerID, UserID: userID, Mode: "book", Net: net, Commission: totalCut})
	}
	return net, nil
}

// bookParticipant reports whether the user made an offer or took a match
// on this wager.
func (w *Wager) bookParticipant(userID string) bool {
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
