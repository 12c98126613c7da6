package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/query"
)

// Deps holds everything the HTTP API needs. Metrics and Health may be nil
// (tests).
type Deps struct {
	Engines map[string]*engine.Engine
	Ledger  *ledger.Ledger
	Query   *query.Service
	Health  *observability.HealthChecker
	Metrics *observability.Metrics
	Log     zerolog.Logger

	// Resolver maps the X-Account header to an account id. Nil gets the
	// default resolver, which expects a UUID in the header.
	Resolver AccountResolver

	// RateLimit throttles the whole API; zero disables throttling.
	RateLimit rate.Limit
	RateBurst int
}

// Server is the HTTP/JSON API over the engines and the query service.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// New builds the server with its full route tree.
func New(addr string, deps *Deps) *Server {
	if deps.Resolver == nil {
		deps.Resolver = HeaderResolver{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if deps.RateLimit > 0 {
		r.Use(throttle(rate.NewLimiter(deps.RateLimit, deps.RateBurst)))
	}
	if deps.Metrics != nil {
		r.Use(instrument(deps.Metrics))
	}

	h := &handlers{deps: deps}

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.LivenessHandler)
		r.Get("/readyz", deps.Health.ReadinessHandler)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/{namespace}", func(r chi.Router) {
		r.Use(h.requireNamespace)

		r.Get("/pools", h.listPools)
		r.Post("/pools", h.createPool)
		r.Get("/journal", h.journalHistory)

		r.Route("/pools/{pool}", func(r chi.Router) {
			r.Get("/", h.getPool)
			r.Delete("/", h.removePool)
			r.Post("/enable", h.enablePool)
			r.Post("/disable", h.disablePool)
			r.Post("/deposit", h.depositLiquidity)
			r.Post("/withdraw", h.withdrawLiquidity)
			r.Get("/liquidity", h.liquidity)
			r.Get("/traders/{account}", h.getTrader)

			r.Route("/pairs/{asset}", func(r chi.Router) {
				r.Post("/spread", h.setSpread)
				r.Post("/collateral-ratio", h.setCollateralRatio)
				r.Post("/liquidation-ratio", h.setLiquidationRatio)
				r.Post("/enable", h.enablePair)
				r.Post("/buy", h.buy)
				r.Post("/sell", h.sell)
				r.Post("/liquidate", h.liquidate)
				r.Post("/collateral", h.addCollateral)
			})
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: deps.Log,
	}
}

// Start serves until the context is cancelled, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }
