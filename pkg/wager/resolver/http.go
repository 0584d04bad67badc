package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arenastake/wagerd/pkg/wager/ledger"
)

// HTTPResolver resolves matches against an external results service over
// JSON. The service reports one of {pending, live, completed, unknown}
// plus the winner's id or name when completed; name matching falls back
// to normalized comparison against the wager's contestants.
type HTTPResolver struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPResolver creates a resolver client for the given base URL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

// matchStatus is the results service's wire format.
type matchStatus struct {
	Status     string `json:"status"` // pending | live | completed | unknown
	WinnerID   string `json:"winner_id,omitempty"`
	WinnerName string `json:"winner_name,omitempty"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, ref ledger.MatchRef) (Result, error) {
	u := fmt.Sprintf("%s/matches/%s/%s/%s/%s",
		r.baseURL,
		url.PathEscape(ref.TournamentID),
		url.PathEscape(ref.EventID),
		url.PathEscape(ref.PhaseID),
		url.PathEscape(ref.MatchID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", ref.MatchID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The service no longer knows the match; it can never resolve.
		return Result{State: StateIndeterminate}, nil
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("resolve %s: unexpected status %d", ref.MatchID, resp.StatusCode)
	}

	var ms matchStatus
	if err := json.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return Result{}, fmt.Errorf("resolve %s: decode: %w", ref.MatchID, err)
	}

	switch ms.Status {
	case "pending":
		return Result{State: StatePending}, nil
	case "live":
		return Result{State: StateInProgress}, nil
	case "completed":
		winner := ms.WinnerID
		if winner == "" {
			winner = ms.WinnerName
		}
		if side, ok := SideForName(ref, winner); ok {
			return Result{State: StateCompleted, Winner: side}, nil
		}
		// Finished, but the reported winner matches neither contestant.
		return Result{State: StateCompleted}, nil
	case "unknown":
		return Result{State: StateIndeterminate}, nil
	default:
		return Result{}, fmt.Errorf("resolve %s: unrecognized status %q", ref.MatchID, ms.Status)
	}
}
