// Package resolver defines the match resolver port: the external source of
// truth for real-world match outcomes, reduced to a four-state interface.
// How a backend finds results (API paging, name fuzzing, caching) is its
// own business; the settlement sweep only consumes Results.
package resolver

import (
	"context"

	"github.com/arenastake/wagerd/pkg/wager/ledger"
)

// State is the resolver's view of a match.
type State int

const (
	// StatePending means the match has not started.
	StatePending State = iota
	// StateInProgress means the match is being played.
	StateInProgress
	// StateCompleted means the match finished. Winner carries the outcome;
	// a zero Winner means no side could be attributed (draw, forfeit of
	// both, malformed result) and the wager settles void.
	StateCompleted
	// StateIndeterminate means the match can never be resolved, for
	// example because the tournament concluded before the reference could
	// be matched. The wager is voided and refunded proactively.
	StateIndeterminate
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Result is a resolver's answer for one match reference.
type Result struct {
	State  State
	Winner ledger.Side // zero when no side won or not yet decided
}

// Resolver resolves a match reference to its current state. Errors are
// transient (network, upstream outage) and are retried by the settlement
// sweep; a definitive "this can never be resolved" is StateIndeterminate,
// not an error.
type Resolver interface {
	Resolve(ctx context.Context, ref ledger.MatchRef) (Result, error)
}

// Static is a fixed-answer resolver for tests and standalone runs.
type Static struct {
	Result Result
	Err    error
}

func (s Static) Resolve(ctx context.Context, ref ledger.MatchRef) (Result, error) {
	return s.Result, s.Err
}
