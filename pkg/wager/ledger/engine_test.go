package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// testWallet implements Wallet for testing.
type testWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	journal  []Entry
}

func newTestWallet() *testWallet {
	return &testWallet{balances: make(map[string]decimal.Decimal)}
}

func (w *testWallet) deposit(userID string, amount float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = w.balances[userID].Add(decimal.NewFromFloat(amount))
}

func (w *testWallet) balance(userID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID]
}

// total returns the sum of all balances, for conservation checks.
func (w *testWallet) total() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	sum := decimal.Zero
	for _, b := range w.balances {
		sum = sum.Add(b)
	}
	return sum
}

func (w *testWallet) Debit(ctx context.Context, userID string, amount decimal.Decimal, entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	bal := w.balances[userID]
	if bal.LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.balances[userID] = bal.Sub(amount)
	w.journal = append(w.journal, entry)
	return nil
}

func (w *testWallet) Credit(ctx context.Context, userID string, amount decimal.Decimal, entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = w.balances[userID].Add(amount)
	w.journal = append(w.journal, entry)
	return nil
}

func testMatch() MatchRef {
	return MatchRef{
		TournamentID: "major-2026",
		EventID:      "playoffs",
		PhaseID:      "grand-final",
		MatchID:      "m1",
		Contestant1:  Contestant{ID: "t1", Name: "Natus Vincere"},
		Contestant2:  Contestant{ID: "t2", Name: "FaZe Clan"},
	}
}

func newTestEngine() (*Engine, *testWallet) {
	w := newTestWallet()
	return NewEngine(w), w
}

func createOpenWager(t *testing.T, e *Engine) *Wager {
	t.Helper()
	w, err := e.CreateWager(CreateWagerParams{
		Match:     testMatch(),
		CreatorID: "creator",
		MinStake:  decimal.NewFromInt(1),
		MaxStake:  decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateWager failed: %v", err)
	}
	return w
}

func TestCreateWager_Validation(t *testing.T) {
	e, _ := newTestEngine()

	cases := []struct {
		name   string
		params CreateWagerParams
	}{
		{"missing match id", CreateWagerParams{
			Match:    MatchRef{Contestant1: Contestant{ID: "a"}, Contestant2: Contestant{ID: "b"}},
			MinStake: decimal.NewFromInt(1), MaxStake: decimal.NewFromInt(10),
		}},
		{"same contestants", CreateWagerParams{
			Match:    MatchRef{MatchID: "m", Contestant1: Contestant{ID: "a"}, Contestant2: Contestant{ID: "a"}},
			MinStake: decimal.NewFromInt(1), MaxStake: decimal.NewFromInt(10),
		}},
		{"min above max", CreateWagerParams{
			Match:    testMatch(),
			MinStake: decimal.NewFromInt(10), MaxStake: decimal.NewFromInt(1),
		}},
		{"zero limits", CreateWagerParams{
			Match: testMatch(),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.CreateWager(tc.params); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestGetWager_NotFound(t *testing.T) {
	e, _ := newTestEngine()
	if _, err := e.GetWager("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkInProgress_Idempotent(t *testing.T) {
	e, _ := newTestEngine()
	w := createOpenWager(t, e)

	if err := e.MarkInProgress(w.ID); err != nil {
		t.Fatalf("MarkInProgress failed: %v", err)
	}
	if err := e.MarkInProgress(w.ID); err != nil {
		t.Fatalf("second MarkInProgress should be a no-op, got %v", err)
	}

	got, _ := e.GetWager(w.ID)
	if got.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", got.Status)
	}

	if err := e.Complete(w.ID, WinnerSide1); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := e.MarkInProgress(w.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState after completion, got %v", err)
	}
}

func TestComplete_StateMachine(t *testing.T) {
	e, _ := newTestEngine()
	w := createOpenWager(t, e)

	if err := e.Complete(w.ID, WinnerUndetermined); !errors.Is(err, ErrValidation) {
		t.Errorf("completing without an outcome should fail validation, got %v", err)
	}
	if err := e.Complete(w.ID, WinnerSide2); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := e.Complete(w.ID, WinnerSide1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("status must never move backward, got %v", err)
	}

	got, _ := e.GetWager(w.ID)
	if got.Winner != WinnerSide2 {
		t.Errorf("expected winner side2, got %s", got.Winner)
	}
	if got.ResolvedAt == nil {
		t.Error("ResolvedAt should be set")
	}
}

func TestMoneyConservation(t *testing.T) {
	e, w := newTestEngine()
	ctx := context.Background()

	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		w.deposit(u, 1000)
	}
	initial := w.total()

	wg := createOpenWager(t, e)

	// Pool stakes on both sides.
	if _, err := e.PlaceStake(ctx, wg.ID, "alice", Side1, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("PlaceStake: %v", err)
	}
	if _, err := e.PlaceStake(ctx, wg.ID, "bob", Side2, decimal.NewFromInt(300)); err != nil {
		t.Fatalf("PlaceStake: %v", err)
	}

	// Order-book: carol offers 50 at 1:1, dave takes half.
	offer, err := e.CreateOffer(ctx, wg.ID, "carol", Side1, decimal.NewFromInt(50), 1, 1)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, err := e.AcceptOffer(ctx, wg.ID, offer.ID, "dave", decimal.NewFromInt(25)); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	if err := e.Complete(wg.ID, WinnerSide1); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if _, err := e.ClaimPool(ctx, wg.ID, "alice"); err != nil {
		t.Fatalf("ClaimPool alice: %v", err)
	}
	if _, err := e.ClaimPool(ctx, wg.ID, "bob"); !errors.Is(err, ErrNotWinner) {
		t.Fatalf("bob should not win, got %v", err)
	}
	if _, err := e.ClaimOrderBook(ctx, wg.ID, "carol"); err != nil {
		t.Fatalf("ClaimOrderBook carol: %v", err)
	}
	if _, err := e.ClaimOrderBook(ctx, wg.ID, "dave"); !errors.Is(err, ErrNotWinner) {
		t.Fatalf("dave should not win, got %v", err)
	}

	// No money created or destroyed: every balance including the house
	// account sums back to the initial total, up to rounding dust left
	// in escrow (strictly below one cent per payout, two payouts here).
	final := w.total()
	escrowed := initial.Sub(final)
	if escrowed.IsNegative() {
		t.Errorf("money was created: initial %s, final %s", initial, final)
	}
	if escrowed.GreaterThan(decimal.NewFromFloat(0.02)) {
		t.Errorf("money was destroyed: %s missing", escrowed)
	}
}

func TestAdminCancel_RefundsPoolStakes(t *testing.T) {
	e, w := newTestEngine()
	ctx := context.Background()
	w.deposit("alice", 500)
	w.deposit("bob", 500)

	wg := createOpenWager(t, e)
	if _, err := e.PlaceStake(ctx, wg.ID, "alice", Side1, decimal.NewFromInt(200)); err != nil {
		t.Fatalf("PlaceStake: %v", err)
	}
	offer, err := e.CreateOffer(ctx, wg.ID, "bob", Side2, decimal.NewFromInt(100), 1, 1)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	if err := e.AdminCancel(ctx, wg.ID, "match postponed indefinitely"); err != nil {
		t.Fatalf("AdminCancel: %v", err)
	}

	// Pool stake refunded immediately.
	if !w.balance("alice").Equal(decimal.NewFromInt(500)) {
		t.Errorf("alice should be made whole immediately, got %s", w.balance("alice"))
	}

	// Book funds come back through the void claim path.
	if _, err := e.ClaimOrderBook(ctx, wg.ID, "bob"); err != nil {
		t.Fatalf("ClaimOrderBook after cancel: %v", err)
	}
	if !w.balance("bob").Equal(decimal.NewFromInt(500)) {
		t.Errorf("bob should be made whole after claiming, got %s", w.balance("bob"))
	}

	got, _ := e.GetWager(wg.ID)
	if got.Status != StatusCancelled || got.Winner != WinnerVoid {
		t.Errorf("expected cancelled/void, got %s/%s", got.Status, got.Winner)
	}
	_ = offer
}

func TestCompleteUnresolvable_RefundsEverything(t *testing.T) {
	e, w := newTestEngine()
	ctx := context.Background()
	w.deposit("alice", 500)
	w.deposit("bob", 500)
	w.deposit("carol", 500)

	wg := createOpenWager(t, e)
	if _, err := e.PlaceStake(ctx, wg.ID, "alice", Side1, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("PlaceStake: %v", err)
	}
	offer, err := e.CreateOffer(ctx, wg.ID, "bob", Side1, decimal.NewFromInt(60), 2, 1)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, err := e.AcceptOffer(ctx, wg.ID, offer.ID, "carol", decimal.NewFromInt(40)); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	if err := e.CompleteUnresolvable(ctx, wg.ID, "unresolvable"); err != nil {
		t.Fatalf("CompleteUnresolvable: %v", err)
	}

	// Every participant made whole without claiming.
	for _, u := range []string{"alice", "bob", "carol"} {
		if !w.balance(u).Equal(decimal.NewFromInt(500)) {
			t.Errorf("%s should be refunded proactively, got %s", u, w.balance(u))
		}
	}

	got, _ := e.GetWager(wg.ID)
	if got.Winner != WinnerVoid {
		t.Errorf("expected void outcome, got %s", got.Winner)
	}
	if !got.Pool.Total.IsZero() || !got.Book.Total.IsZero() {
		t.Errorf("ledgers should be drained, pool %s book %s", got.Pool.Total, got.Book.Total)
	}

	// Nothing left to claim afterwards.
	if _, err := e.ClaimPool(ctx, wg.ID, "alice"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
	if _, err := e.ClaimOrderBook(ctx, wg.ID, "bob"); !errors.Is(err, ErrNothingToClaim) {
		t.Errorf("expected ErrNothingToClaim, got %v", err)
	}
}

func TestReportDispute(t *testing.T) {
	e, w := newTestEngine()
	ctx := context.Background()
	w.deposit("alice", 100)

	wg := createOpenWager(t, e)
	if _, err := e.PlaceStake(ctx, wg.ID, "alice", Side1, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("PlaceStake: %v", err)
	}

	if err := e.ReportDispute(wg.ID, "stranger", "bad result"); !errors.Is(err, ErrNoParticipation) {
		t.Errorf("outsider must not dispute, got %v", err)
	}
	if err := e.ReportDispute(wg.ID, "alice", "bad result"); err != nil {
		t.Fatalf("participant dispute failed: %v", err)
	}

	got, _ := e.GetWager(wg.ID)
	if got.Status != StatusDisputed || !got.Disputed {
		t.Errorf("expected disputed, got %s", got.Status)
	}

	// Disputed is terminal for automated processing.
	if err := e.Complete(wg.ID, WinnerSide1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("disputed wager must not settle, got %v", err)
	}
	if err := e.ReportDispute(wg.ID, "alice", "again"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cannot dispute a terminal wager, got %v", err)
	}
}

func TestReportDispute_CreatorMayDispute(t *testing.T) {
	e, _ := newTestEngine()
	wg := createOpenWager(t, e)
	if err := e.ReportDispute(wg.ID, "creator", "wrong match listed"); err != nil {
		t.Fatalf("creator dispute failed: %v", err)
	}
}

func TestListActive(t *testing.T) {
	e, _ := newTestEngine()
	a := createOpenWager(t, e)
	b := createOpenWager(t, e)

	if err := e.Complete(b.ID, WinnerSide1); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	active := e.ListActive()
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("expected only wager %s active, got %d wagers", a.ID, len(active))
	}
	if all := e.ListAll(); len(all) != 2 {
		t.Errorf("expected 2 wagers total, got %d", len(all))
	}
}

// Operations on different wagers must not serialize on each other.
func TestParallelWagers(t *testing.T) {
	e, w := newTestEngine()
	ctx := context.Background()

	const n = 8
	wagers := make([]*Wager, n)
	for i := range wagers {
		wagers[i] = createOpenWager(t, e)
	}
	w.deposit("user", 1000)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := e.PlaceStake(ctx, id, "user", Side1, decimal.NewFromInt(10)); err != nil {
				errs <- err
			}
		}(wagers[i].ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("parallel stake failed: %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	e, w := newTestEngine()
	ctx := context.Background()
	w.deposit("alice", 100)

	wg := createOpenWager(t, e)
	if _, err := e.PlaceStake(ctx, wg.ID, "alice", Side1, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("PlaceStake: %v", err)
	}

	got, _ := e.GetWager(wg.ID)
	got.Stakes[0].Amount = decimal.NewFromInt(9999)
	got.Pool.Total = decimal.NewFromInt(9999)

	again, _ := e.GetWager(wg.ID)
	if !again.Stakes[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Error("mutating a snapshot must not affect engine state")
	}
	if !again.Pool.Total.Equal(decimal.NewFromInt(10)) {
		t.Error("mutating a snapshot's totals must not affect engine state")
	}
}
