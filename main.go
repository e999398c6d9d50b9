package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"momentum-core/internal/api"
	"momentum-core/internal/breaker"
	"momentum-core/internal/engine"
	"momentum-core/internal/events"
	"momentum-core/internal/executor"
	"momentum-core/internal/exit"
	"momentum-core/internal/history"
	"momentum-core/internal/risk"
	"momentum-core/internal/scanner"
	sig "momentum-core/internal/signal"
	"momentum-core/internal/stream"
	"momentum-core/pkg/config"
	"momentum-core/pkg/db"
	"momentum-core/pkg/exchanges/binance/futures"
)

// tickerSource adapts the futures client to the scanner's view.
type tickerSource struct {
	client *futures.Client
}

func (t tickerSource) Tickers24h(ctx context.Context) ([]scanner.Ticker, error) {
	raw, err := t.client.Tickers24h(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]scanner.Ticker, 0, len(raw))
	for _, r := range raw {
		out = append(out, scanner.Ticker{
			Symbol:        r.Symbol,
			LastPrice:     r.LastPrice,
			QuoteVolume:   r.QuoteVolume,
			ChangePercent: r.ChangePercent,
		})
	}
	return out, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "dev"
	}
	mode := "LIVE"
	if !cfg.ExecutionEnabled {
		mode = "DRY_RUN"
	}
	log.Printf("momentum-core %s starting (%s, testnet=%v, port=%s)", buildVersion, mode, cfg.BinanceTestnet, cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations: %v", err)
	}
	recorder := engine.NewRecorder(database)

	brk := breaker.New(cfg.BreakerStatePath)
	if err := brk.Load(); err != nil {
		log.Fatalf("breaker state: %v", err)
	}

	client := futures.NewClient(futures.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	client.StartTimeSync(ctx)

	exec := executor.New(client, client, cfg.MarginType, cfg.ExecutionEnabled)
	if err := exec.Warmup(ctx); err != nil {
		log.Fatalf("exchange filters: %v", err)
	}

	exitCfg := exit.DefaultConfig()
	exitCfg.BreakevenROE = cfg.BreakevenROE
	exitCfg.TrailingROE = cfg.TrailingROE
	exitCfg.BaseCallback = cfg.BaseCallback
	exitCfg.MinCallback = cfg.MinCallback
	exitCfg.FeeBuffer = cfg.FeeBufferRatio
	exitCfg.TimeStopAfter = cfg.TimeStopAfter

	riskMgr := risk.NewManager(exitCfg, cfg.MaxOpenPositions, exec, recorder, brk)
	riskMgr.OnClose(func(rec risk.TradeRecord) {
		bus.Publish(events.EventPositionClose, rec)
	})
	brk.OnChange(func(paused bool, reason string) {
		if paused {
			bus.Publish(events.EventBreakerPause, reason)
			return
		}
		bus.Publish(events.EventBreakerResume, reason)
	})

	scn := scanner.New(tickerSource{client: client}, scanner.Config{
		UniverseSize:    cfg.UniverseSize,
		ShortlistSize:   cfg.TopGainerCount,
		ChangeMin:       cfg.ChangeThresholdMin,
		ChangeMax:       cfg.ChangeThresholdMax,
		MinVolume24hUSD: cfg.MinVolume24hUSD,
		Blacklist:       cfg.Blacklist,
	})

	streams := stream.NewManager(stream.Config{
		Testnet:    cfg.BinanceTestnet,
		BatchSize:  cfg.StreamBatchSize,
		IdleAfter:  cfg.StreamIdleAfter,
		BackoffCap: cfg.ReconnectBackoff,
	})
	defer streams.Close()

	eng := engine.New(engine.Config{
		TimeframeMinutes: cfg.TimeframeMinutes,
		EvalConcurrency:  cfg.EvalConcurrency,
		HistoryBars:      cfg.HistoryBars,
		RiskPerTrade:     cfg.RiskPerTrade,
		ATRPeriod:        cfg.ATRPeriod,
		ATRMultiplier:    cfg.ATRMultiplier,
		StopCapPct:       cfg.StopCapPct,
		FallbackStopROE:  cfg.BreakevenROE,
	}, engine.Deps{
		Account: client,
		Opener:  exec,
		Risk:    riskMgr,
		Breaker: brk,
		Scanner: scn,
		Eval:    sig.NewEvaluator(cfg.Signal),
		Quality: sig.NewQualityFilter(cfg.Blacklist, cfg.MinVolume24hUSD, cfg.Signal.VolatilityCap, cfg.ATRPeriod),
		History: history.NewRESTProvider(client),
		Streams: streams,
		Bus:     bus,
		Metrics: database,
	})

	// Adopt whatever the venue reports before trading; snapshots from a
	// previous run that the venue no longer confirms are stale.
	snaps, err := recorder.LoadPositions()
	if err != nil {
		log.Fatalf("position snapshots: %v", err)
	}
	if err := eng.Reconcile(ctx, client); err != nil {
		log.Fatalf("reconcile: %v", err)
	}
	for _, s := range snaps {
		if !riskMgr.Has(s.Symbol) {
			log.Printf("main: dropping stale snapshot %s (not at venue)", s.Symbol)
			if err := recorder.DeletePosition(s.Symbol); err != nil {
				log.Printf("main: drop snapshot %s: %v", s.Symbol, err)
			}
		}
	}

	server := api.NewServer(bus, database, riskMgr, brk, scn, api.SystemMeta{
		DryRun:    !cfg.ExecutionEnabled,
		Testnet:   cfg.BinanceTestnet,
		Timeframe: strconv.Itoa(cfg.TimeframeMinutes) + "m",
		Version:   buildVersion,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("engine: %v", err)
	}
	log.Println("momentum-core stopped")
}
