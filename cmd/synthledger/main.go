package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	"SynthLedger/internal/config"
	"SynthLedger/internal/engine"
	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ingestion"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/persistence"
	"SynthLedger/internal/query"
	"SynthLedger/internal/risk"
	"SynthLedger/internal/server"
)

func main() {
	log := observability.NewLogger("synthledger")
	log.Info().Msg("starting")

	cfg, err := config.Load(os.Getenv("SYNTH_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Ledger and assets ---
	l := ledger.New()
	for _, asset := range cfg.Assets {
		ed, err := fixed.Parse(asset.ExistentialDeposit)
		if err != nil {
			log.Fatal().Str("asset", asset.Symbol).Err(err).Msg("parse existential deposit")
		}
		l.RegisterAsset(asset.Symbol, ed)
	}
	board := oracle.NewBoard()

	// --- Engines, one per namespace, all journaling to the same channel ---
	records := make(chan engine.Record, cfg.Persist.ChannelSize)
	engines := make(map[string]*engine.Engine, len(cfg.Namespaces))
	sinks := make([]ingestion.PriceSink, 0, len(cfg.Namespaces))
	for _, ns := range cfg.Namespaces {
		settlement, ok := l.AssetBySymbol(ns.SettlementAsset)
		if !ok {
			log.Fatal().Str("namespace", ns.Name).Msg("unknown settlement asset")
		}
		e := engine.New(
			ns.Name, l, board, settlement,
			risk.Thresholds{ENP: fixed.Ratio(ns.ENPThresholdPPM), ELL: fixed.Ratio(ns.ELLThresholdPPM)},
			records, metrics, observability.NewLogger("engine."+ns.Name),
		)
		if ns.MinCollateralRatioPPM > 0 {
			if err := e.SetMinAdditionalCollateralRatio(fixed.Ratio(ns.MinCollateralRatioPPM)); err != nil {
				log.Fatal().Str("namespace", ns.Name).Err(err).Msg("set min collateral ratio")
			}
		}
		if ns.LiquidationPenaltyPPM > 0 {
			if err := e.SetLiquidationPenalty(fixed.Ratio(ns.LiquidationPenaltyPPM)); err != nil {
				log.Fatal().Str("namespace", ns.Name).Err(err).Msg("set liquidation penalty")
			}
		}
		engines[ns.Name] = e
		sinks = append(sinks, e)
		log.Info().Str("namespace", ns.Name).Str("settlement", ns.SettlementAsset).Msg("engine wired")
	}

	errChan := make(chan error, 4)

	// --- Journal worker ---
	worker := persistence.NewWorker(
		db, records,
		cfg.Persist.BatchSize, cfg.Persist.FlushTimeout,
		metrics, observability.NewLogger("persistence"),
	)
	go func() {
		errChan <- worker.Run(ctx)
	}()

	// --- Oracle price feed ---
	nc, js, err := ingestion.Connect(cfg.NATSURL, observability.NewLogger("nats"))
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := ingestion.EnsureStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure price stream")
	}
	feed := ingestion.NewPriceFeed(js, l, sinks, metrics, observability.NewLogger("pricefeed"))
	if err := feed.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("price feed subscribe")
	}

	// --- HTTP API ---
	srv := server.New(cfg.ListenAddr, &server.Deps{
		Engines:   engines,
		Ledger:    l,
		Query:     query.NewService(engines, db),
		Health:    health,
		Metrics:   metrics,
		Log:       observability.NewLogger("http"),
		RateLimit: rate.Limit(cfg.RateLimit),
		RateBurst: cfg.RateBurst,
	})
	go func() {
		errChan <- srv.Start(ctx)
	}()

	health.SetReady(true)
	log.Info().Str("addr", cfg.ListenAddr).Int("namespaces", len(engines)).Msg("ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("component failed, shutting down")
		}
	}

	cancel()
	feed.Stop()

	// The worker flushes its final batch when the context is cancelled.
	time.Sleep(500 * time.Millisecond)
	log.Info().Msg("shutdown complete")
}
