package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arenastake/wagerd/pkg/wager/ledger"
)

// routes builds the daemon's HTTP API.
func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()

	// Wagers
	mux.HandleFunc("POST /wagers", d.handleCreateWager)
	mux.HandleFunc("GET /wagers", d.handleListWagers)
	mux.HandleFunc("GET /wagers/{id}", d.handleGetWager)
	mux.HandleFunc("POST /wagers/{id}/dispute", d.handleDispute)
	mux.HandleFunc("POST /wagers/{id}/cancel", d.handleAdminCancel)

	// Pool betting
	mux.HandleFunc("POST /wagers/{id}/stakes", d.handlePlaceStake)
	mux.HandleFunc("GET /wagers/{id}/odds", d.handleOdds)
	mux.HandleFunc("GET /wagers/{id}/potential", d.handlePotentialWinnings)

	// Order-book betting
	mux.HandleFunc("POST /wagers/{id}/offers", d.handleCreateOffer)
	mux.HandleFunc("GET /wagers/{id}/offers", d.handleListOffers)
	mux.HandleFunc("POST /wagers/{id}/offers/{offerID}/accept", d.handleAcceptOffer)
	mux.HandleFunc("POST /wagers/{id}/offers/{offerID}/cancel", d.handleCancelOffer)

	// Claims
	mux.HandleFunc("POST /wagers/{id}/claims/pool", d.handleClaimPool)
	mux.HandleFunc("POST /wagers/{id}/claims/book", d.handleClaimBook)

	// Wallet (standalone mode only; the in-memory wallet backs these)
	mux.HandleFunc("POST /users/{id}/deposit", d.handleDeposit)
	mux.HandleFunc("GET /users/{id}/balance", d.handleBalance)

	// Operations
	mux.HandleFunc("POST /sweep", d.handleSweep)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /ws", d.hub.ServeWS)

	return mux
}

func (d *daemon) handleCreateWager(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Match     ledger.MatchRef `json:"match"`
		CreatorID string          `json:"creator_id"`
		MinStake  decimal.Decimal `json:"min_stake"`
		MaxStake  decimal.Decimal `json:"max_stake"`
	}
	if !decode(w, r, &req) {
		return
	}
	wager, err := d.engine.CreateWager(ledger.CreateWagerParams{
		Match:     req.Match,
		CreatorID: req.CreatorID,
		MinStake:  req.MinStake,
		MaxStake:  req.MaxStake,
	})
	if err != nil {
		d.writeError(w, err)
		return
	}
	d.metrics.WagersCreated.Inc()
	d.metrics.ActiveWagers.Set(float64(len(d.engine.ListActive())))
	d.hub.BroadcastWager(wager.ID, wager)
	writeJSON(w, http.StatusCreated, wager)
}

func (d *daemon) handleListWagers(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") == "active" {
		writeJSON(w, http.StatusOK, d.engine.ListActive())
		return
	}
	writeJSON(w, http.StatusOK, d.engine.ListAll())
}

func (d *daemon) handleGetWager(w http.ResponseWriter, r *http.Request) {
	wager, err := d.engine.GetWager(r.PathValue("id"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wager)
}

func (d *daemon) handlePlaceStake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string          `json:"user_id"`
		Side   int             `json:"side"`
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	stake, err := d.engine.PlaceStake(r.Context(), r.PathValue("id"), req.UserID, ledger.Side(req.Side), req.Amount)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stake)
}

func (d *daemon) handleOdds(w http.ResponseWriter, r *http.Request) {
	var side ledger.Side
	switch r.URL.Query().Get("side") {
	case "", "1":
		side = ledger.Side1
	case "2":
		side = ledger.Side2
	default:
		http.Error(w, "side must be 1 or 2", http.StatusBadRequest)
		return
	}
	odds, ok, err := d.engine.Odds(r.PathValue("id"), side)
	if err != nil {
		d.writeError(w, err)
		return
	}
	resp := map[string]interface{}{"side": side.String(), "available": ok}
	if ok {
		resp["odds"] = odds
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *daemon) handlePotentialWinnings(w http.ResponseWriter, r *http.Request) {
	gross, err := d.engine.PotentialWinnings(r.PathValue("id"), r.URL.Query().Get("user_id"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"gross": gross})
}

func (d *daemon) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MakerID     string          `json:"maker_id"`
		Side        int             `json:"side"`
		StakeAmount decimal.Decimal `json:"stake_amount"`
		OddsNum     int64           `json:"odds_num"`
		OddsDen     int64           `json:"odds_den"`
	}
	if !decode(w, r, &req) {
		return
	}
	offer, err := d.engine.CreateOffer(r.Context(), r.PathValue("id"), req.MakerID, ledger.Side(req.Side), req.StakeAmount, req.OddsNum, req.OddsDen)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

func (d *daemon) handleListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := d.engine.ListOffers(r.PathValue("id"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

func (d *daemon) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TakerID string          `json:"taker_id"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	match, err := d.engine.AcceptOffer(r.Context(), r.PathValue("id"), r.PathValue("offerID"), req.TakerID, req.Amount)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

func (d *daemon) handleCancelOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	refunded, err := d.engine.CancelOffer(r.Context(), r.PathValue("id"), r.PathValue("offerID"), req.UserID)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"refunded": refunded})
}

func (d *daemon) handleClaimPool(w http.ResponseWriter, r *http.Request) {
	d.handleClaim(w, r, d.engine.ClaimPool)
}

func (d *daemon) handleClaimBook(w http.ResponseWriter, r *http.Request) {
	d.handleClaim(w, r, d.engine.ClaimOrderBook)
}

func (d *daemon) handleClaim(w http.ResponseWriter, r *http.Request, claim func(ctx context.Context, wagerID, userID string) (decimal.Decimal, error)) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	net, err := claim(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"net": net})
}

func (d *daemon) handleDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := d.engine.ReportDispute(r.PathValue("id"), req.UserID, req.Reason); err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disputed"})
}

func (d *daemon) handleAdminCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := d.engine.AdminCancel(r.Context(), r.PathValue("id"), req.Reason); err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (d *daemon) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	d.wallet.Deposit(r.PathValue("id"), req.Amount)
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": d.wallet.Balance(r.PathValue("id"))})
}

func (d *daemon) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": d.wallet.Balance(r.PathValue("id"))})
}

func (d *daemon) handleSweep(w http.ResponseWriter, r *http.Request) {
	if err := d.sweeper.Sweep(r.Context()); err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "swept"})
}

// writeError maps ledger error kinds onto HTTP statuses.
func (d *daemon) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrDuplicateParticipation),
		errors.Is(err, ledger.ErrSelfMatch),
		errors.Is(err, ledger.ErrAlreadyClaimed),
		errors.Is(err, ledger.ErrNothingToClaim),
		errors.Is(err, ledger.ErrNotWinner):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNoParticipation):
		status = http.StatusForbidden
	default:
		d.log.Error("internal error", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
