// Package settle drives wagers to their terminal state by periodically
// polling the match resolver and applying the resulting transitions to
// the ledger engine.
package settle

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arenastake/wagerd/pkg/wager/ledger"
	"github.com/arenastake/wagerd/pkg/wager/metrics"
	"github.com/arenastake/wagerd/pkg/wager/resolver"
)

const (
	// resolveAttempts bounds retries of one resolver call within a sweep;
	// a wager that still fails is retried on the next sweep.
	resolveAttempts = 3
	resolveBackoff  = 200 * time.Millisecond
)

// Config wires a Sweeper. Locker, Limiter and Metrics are optional.
type Config struct {
	Engine   *ledger.Engine
	Resolver resolver.Resolver
	Locker   Locker
	Logger   *zap.Logger
	Metrics  *metrics.WagerMetrics

	// ResolverRPS caps resolver calls per second. Zero means no limit.
	ResolverRPS float64
}

// Sweeper walks all active wagers, asks the resolver where each match
// stands, and advances the wager accordingly. Every transition it applies
// is idempotent or guarded by the engine's state machine, so overlapping
// or repeated sweeps cannot corrupt a wager; the locker only exists to
// avoid wasted resolver calls.
type Sweeper struct {
	engine   *ledger.Engine
	resolver resolver.Resolver
	locker   Locker
	limiter  *rate.Limiter
	log      *zap.Logger
	metrics  *metrics.WagerMetrics
}

// NewSweeper creates a sweeper from the config.
func NewSweeper(cfg Config) *Sweeper {
	locker := cfg.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.ResolverRPS > 0 {
		limit = rate.Limit(cfg.ResolverRPS)
	}
	return &Sweeper{
		engine:   cfg.Engine,
		resolver: cfg.Resolver,
		locker:   locker,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		metrics:  cfg.Metrics,
	}
}

// Sweep runs one settlement pass. It returns nil when the pass ran or was
// skipped because another sweep holds the lock; a per-wager failure is
// logged and skipped, never aborts the pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	ok, err := s.locker.TryLock(ctx)
	if err != nil {
		s.countRun("failed")
		return err
	}
	if !ok {
		s.log.Debug("sweep already running, skipping")
		s.countRun("skipped")
		return nil
	}
	defer func() {
		if err := s.locker.Unlock(ctx); err != nil {
			s.log.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	start := time.Now()
	active := s.engine.ListActive()
	s.log.Info("settlement sweep started", zap.Int("active_wagers", len(active)))

	for _, w := range active {
		if err := ctx.Err(); err != nil {
			s.countRun("failed")
			return err
		}
		if err := s.sweepOne(ctx, w); err != nil {
			s.log.Warn("wager left for next sweep",
				zap.String("wager_id", w.ID),
				zap.String("match_id", w.Match.MatchID),
				zap.Error(err))
			if s.metrics != nil {
				s.metrics.ResolverErrors.Inc()
			}
		}
	}

	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	s.countRun("completed")
	s.log.Info("settlement sweep finished", zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Sweeper) sweepOne(ctx context.Context, w *ledger.Wager) error {
	res, err := s.resolve(ctx, w.Match)
	if err != nil {
		return err
	}

	switch res.State {
	case resolver.StatePending:
		return nil

	case resolver.StateInProgress:
		if w.Status != ledger.StatusOpen {
			return nil
		}
		return s.engine.MarkInProgress(w.ID)

	case resolver.StateCompleted:
		winner := ledger.WinnerVoid
		if res.Winner.Valid() {
			winner = ledger.WinnerForSide(res.Winner)
		}
		if err := s.engine.Complete(w.ID, winner); err != nil {
			return err
		}
		s.countSettled(winner.String())
		s.log.Info("wager settled",
			zap.String("wager_id", w.ID),
			zap.String("match_id", w.Match.MatchID),
			zap.String("winner", winner.String()))
		return nil

	case resolver.StateIndeterminate:
		if err := s.engine.CompleteUnresolvable(ctx, w.ID, "unresolvable"); err != nil {
			return err
		}
		s.countSettled(ledger.WinnerVoid.String())
		s.log.Info("wager voided, match unresolvable",
			zap.String("wager_id", w.ID),
			zap.String("match_id", w.Match.MatchID))
		return nil
	}
	return nil
}

// resolve calls the resolver with rate limiting and a bounded retry on
// transient failure.
func (s *Sweeper) resolve(ctx context.Context, ref ledger.MatchRef) (resolver.Result, error) {
	var lastErr error
	backoff := resolveBackoff
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return resolver.Result{}, ctx.Err()
			}
			backoff *= 2
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return resolver.Result{}, err
		}
		res, err := s.resolver.Resolve(ctx, ref)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return resolver.Result{}, lastErr
}

func (s *Sweeper) countRun(outcome string) {
	if s.metrics != nil {
		s.metrics.SweepRuns.WithLabelValues(outcome).Inc()
	}
}

func (s *Sweeper) countSettled(outcome string) {
	if s.metrics != nil {
		s.metrics.WagersSettled.WithLabelValues(outcome).Inc()
	}
}
