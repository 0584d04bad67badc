// wagerd is the esports wagering daemon. It serves the betting API,
// streams live events over WebSocket and runs the settlement sweep on a
// schedule.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/arenastake/wagerd/pkg/wager/ledger"
	"github.com/arenastake/wagerd/pkg/wager/metrics"
	"github.com/arenastake/wagerd/pkg/wager/resolver"
	"github.com/arenastake/wagerd/pkg/wager/settle"
	"github.com/arenastake/wagerd/pkg/wager/streaming"
	"github.com/arenastake/wagerd/pkg/wager/wallet"
)

var (
	// Flags
	httpAddr    = flag.String("http", ":8080", "HTTP server address")
	sweepSpec   = flag.String("sweep", "*/15 * * * * *", "Settlement sweep schedule (cron, seconds granularity)")
	resolverURL = flag.String("resolver", "", "Match resolver base URL (or RESOLVER_URL env)")
	redisAddr   = flag.String("redis", "", "Redis address for the distributed sweep lock (or REDIS_ADDR env)")
	resolverRPS = flag.Float64("resolver-rps", 5, "Maximum resolver calls per second during a sweep")
	verbose     = flag.Bool("verbose", false, "Verbose logging")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	log := newLogger(*verbose)
	defer log.Sync()
	log.Info("starting wagerd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := newDaemon(log)

	// Settlement schedule, seconds granularity.
	scheduler := cron.New(cron.WithSeconds())
	_, err := scheduler.AddFunc(*sweepSpec, func() {
		if err := d.sweeper.Sweep(ctx); err != nil {
			log.Error("settlement sweep failed", zap.Error(err))
			d.hub.BroadcastError(err, "sweep")
		}
	})
	if err != nil {
		log.Fatal("invalid sweep schedule", zap.String("spec", *sweepSpec), zap.Error(err))
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         *httpAddr,
		Handler:      d.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", *httpAddr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
		}
	}()

	log.Info("wagerd running",
		zap.String("http", *httpAddr),
		zap.String("sweep", *sweepSpec),
		zap.String("ws", "ws://"+*httpAddr+"/ws"))

	<-sigCh
	log.Info("shutting down")

	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	cancel()

	log.Info("goodbye")
}

func newLogger(verbose bool) *zap.Logger {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}

// daemon holds the wired components of a wagerd process.
type daemon struct {
	log     *zap.Logger
	wallet  *wallet.Memory
	engine  *ledger.Engine
	sweeper *settle.Sweeper
	metrics *metrics.WagerMetrics
	hub     *streaming.Hub
}

func newDaemon(log *zap.Logger) *daemon {
	d := &daemon{
		log:     log,
		wallet:  wallet.NewMemory(),
		metrics: metrics.NewWagerMetrics(),
		hub:     streaming.NewHub(log),
	}
	go d.hub.Run()

	d.engine = ledger.NewEngine(d.wallet)
	d.wireCallbacks()

	d.sweeper = settle.NewSweeper(settle.Config{
		Engine:      d.engine,
		Resolver:    d.newResolver(),
		Locker:      d.newLocker(),
		Logger:      log,
		Metrics:     d.metrics,
		ResolverRPS: *resolverRPS,
	})
	return d
}

// wireCallbacks fans engine events out to metrics and streaming clients.
func (d *daemon) wireCallbacks() {
	d.engine.OnStake(func(wagerID string, s *ledger.PoolStake) {
		d.metrics.StakesPlaced.WithLabelValues("pool", s.Side.String()).Inc()
		d.metrics.StakeVolume.WithLabelValues("pool").Add(s.Amount.InexactFloat64())
		d.hub.BroadcastStake(wagerID, s)
	})
	d.engine.OnOffer(func(wagerID string, o *ledger.Offer) {
		d.metrics.OffersCreated.Inc()
		d.metrics.StakesPlaced.WithLabelValues("book", o.Side.String()).Inc()
		d.metrics.StakeVolume.WithLabelValues("book").Add(o.StakeAmount.InexactFloat64())
		d.hub.BroadcastOffer(wagerID, o)
	})
	d.engine.OnMatch(func(wagerID, offerID string, m *ledger.OfferMatch) {
		d.metrics.OfferMatches.Inc()
		d.metrics.StakeVolume.WithLabelValues("book").Add(m.MakerCounterStake.InexactFloat64())
		d.hub.BroadcastMatch(wagerID, map[string]interface{}{"offer_id": offerID, "match": m})
	})
	d.engine.OnSettled(func(w *ledger.Wager) {
		d.metrics.ActiveWagers.Set(float64(len(d.engine.ListActive())))
		if w.Status == ledger.StatusCancelled {
			d.metrics.WagersSettled.WithLabelValues("cancelled").Inc()
		}
		d.hub.BroadcastSettled(w.ID, w)
	})
	d.engine.OnClaim(func(c ledger.Claim) {
		d.metrics.ObservePayout(c.Mode, c.Net)
		d.metrics.CommissionCollected.Add(c.Commission.InexactFloat64())
		d.hub.BroadcastClaim(c.WagerID, c)
	})
}

func (d *daemon) newResolver() resolver.Resolver {
	base := *resolverURL
	if base == "" {
		base = os.Getenv("RESOLVER_URL")
	}
	if base != "" {
		d.log.Info("using http match resolver", zap.String("url", base))
		return resolver.NewHTTPResolver(base)
	}
	d.log.Warn("no resolver configured, wagers stay pending until one is set")
	return resolver.Static{Result: resolver.Result{State: resolver.StatePending}}
}

func (d *daemon) newLocker() settle.Locker {
	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		return settle.NewLocalLocker()
	}
	d.log.Info("using redis sweep lock", zap.String("addr", addr))
	client := redis.NewClient(&redis.Options{Addr: addr})
	return settle.NewRedisLocker(client, "wagerd:sweep", 2*time.Minute)
}
