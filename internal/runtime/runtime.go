// Package runtime is C0: the composition root that wires config, C2's
// DB manager, C3's KV cache, every C1 feed client, and every sync
// engine into one process, and owns its start/stop lifecycle.
// Generalized from a single scanner pipeline to the data-plane's set
// of long-lived background loops.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/breaker"
	"github.com/pulseintel/solpulse/internal/candlecache"
	"github.com/pulseintel/solpulse/internal/config"
	"github.com/pulseintel/solpulse/internal/dashboardsync"
	"github.com/pulseintel/solpulse/internal/fanout"
	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/feeds/dashboard"
	"github.com/pulseintel/solpulse/internal/feeds/dex"
	"github.com/pulseintel/solpulse/internal/feeds/metadata"
	"github.com/pulseintel/solpulse/internal/feeds/push"
	"github.com/pulseintel/solpulse/internal/feeds/supply"
	"github.com/pulseintel/solpulse/internal/httpapi"
	"github.com/pulseintel/solpulse/internal/infrastructure/db"
	"github.com/pulseintel/solpulse/internal/ingest"
	"github.com/pulseintel/solpulse/internal/ingest/logocache"
	"github.com/pulseintel/solpulse/internal/kvcache"
	"github.com/pulseintel/solpulse/internal/net/ratelimit"
	"github.com/pulseintel/solpulse/internal/pulsesync"
	"github.com/pulseintel/solpulse/internal/readapi"
	"github.com/pulseintel/solpulse/internal/solprice"
	"github.com/pulseintel/solpulse/internal/swapsync"
)

// App owns every long-lived component this process runs. Build with
// New, then Start(ctx) to run until Shutdown(ctx) or ctx is cancelled.
type App struct {
	cfg config.Config
	log zerolog.Logger

	dbm *db.Manager

	push     feeds.PushClient
	ingester *ingest.Ingester
	pulse    *pulsesync.Engine
	swaps    *swapsync.Engine
	dash     *dashboardsync.Engine
	hub      *fanout.Hub
	sol      *solprice.Service
	http     *httpapi.Server

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New wires every component against cfg. Feed clients whose API key is
// required but absent are left disabled; callers needing tighter
// control should construct App's pieces directly instead.
func New(cfg config.Config, log zerolog.Logger) (*App, error) {
	dbm, err := db.NewManager(db.Config{
		DSN:             cfg.DBURL,
		MaxOpenConns:    cfg.PoolSize,
		MaxIdleConns:    cfg.PoolSize / 2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    10 * time.Second,
		Enabled:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: db manager: %w", err)
	}
	repos := dbm.Repository()

	br := breaker.NewManager(log)
	br.Register(breaker.DefaultConfig("metadata"), []string{"dex", "dashboard"})
	br.Register(breaker.DefaultConfig("dex"), []string{"dashboard"})
	br.Register(breaker.DefaultConfig("dashboard"), nil)
	br.Register(breaker.DefaultConfig("supply"), nil)

	limiter := ratelimit.NewLimiter(8, 16)

	metadataClient := metadata.New(cfg.FeedURLs.Metadata, cfg.APIKeys.Metadata, limiter, br)
	dexClient := dex.New(cfg.FeedURLs.Dex, "", limiter, br)
	dashboardClient := dashboard.New(cfg.FeedURLs.Dashboard, cfg.APIKeys.Dashboard, limiter, br)
	supplyClient := supply.New(cfg.FeedURLs.Supply, cfg.APIKeys.Supply, limiter, br)

	sol := solprice.New(log, solprice.FromMetadata(metadataClient), solprice.FromDashboard(dashboardClient))

	cache := kvcache.NewAuto(cfg.KVURL)

	hub := fanout.New()
	logos := logocache.New(cfg.ImageGateways, cfg.ImageTimeout(), log)

	pushClient := push.New(cfg.FeedURLs.PushWS, log)
	ingester := ingest.New(repos.Swaps, sol, hub, logos, metadataClient, pushClient, cfg.GraduationProximitySolMC, log)

	swapSync := swapsync.New(metadataClient, repos.Swaps, repos.SyncStatus, sol, log)

	pulseEngine := pulsesync.New(
		metadataClient,
		repos.PulseTokens,
		repos.SyncStatus,
		repos.Swaps,
		swapSync,
		ingester,
		logos,
		hub,
		cfg.PulseSyncInterval(),
		cfg.GraduationMCRangeUSD,
		log,
	)

	candles := candlecache.New(repos.Candles, cfg.LiveCandleRefreshMS)

	dashSync := dashboardsync.New(dashboardClient, repos.Tokens, repos.DashboardSync, hub, cfg.DashboardSyncInterval(), log)

	svc := readapi.New(
		repos.Tokens,
		repos.PulseTokens,
		repos.Swaps,
		repos.SyncStatus,
		metadataClient,
		dexClient,
		dashboardClient,
		supplyClient,
		swapSync,
		candles,
		sol,
		cache,
		log,
	)

	httpServer, err := httpapi.New(httpapi.DefaultServerConfig(cfg.HTTPAddr), svc, hub, log)
	if err != nil {
		return nil, fmt.Errorf("runtime: http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		log:      log,
		dbm:      dbm,
		push:     pushClient,
		ingester: ingester,
		pulse:    pulseEngine,
		swaps:    swapSync,
		dash:     dashSync,
		hub:      hub,
		sol:      sol,
		http:     httpServer,
	}, nil
}

// Start launches every background loop and the HTTP server, returning
// once they're all running. It does not block; call Shutdown to stop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(4)
	go func() { defer a.wg.Done(); a.sol.Run(runCtx) }()
	go func() { defer a.wg.Done(); a.pulse.Run(runCtx) }()
	go func() { defer a.wg.Done(); a.dash.Run(runCtx) }()
	go func() {
		defer a.wg.Done()
		if err := a.ingester.Run(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error().Err(err).Msg("push ingester exited")
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.http.Start(); err != nil {
			a.log.Error().Err(err).Msg("http server exited")
		}
	}()

	return nil
}

// Shutdown stops accepting new fan-out subscribers, closes the HTTP
// server, cancels every background loop's context, and waits for them
// to return, bounded by cfg.ShutdownGrace.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownGrace())
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown")
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.log.Warn().Msg("shutdown grace period elapsed with background loops still running")
	}

	return a.dbm.Close()
}
