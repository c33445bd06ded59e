package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/correlation"
	"riskcore/internal/engine"
	"riskcore/internal/exchange/binance"
	"riskcore/internal/metrics"
	"riskcore/internal/position"
	"riskcore/internal/profit"
	"riskcore/internal/risk"
	"riskcore/internal/storage"
	"riskcore/internal/trailing"
)

func main() {
	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	source := initializeProvider(c)
	estimator := correlation.NewEstimator(source, c, m)
	advisory := correlation.NewAdvisory(c, m)
	classifier := correlation.NewClassifier(estimator, advisory)
	sectors := risk.NewSectorTable(c)
	book := position.NewBook()

	var recorder risk.AdmissionRecorder
	var persister engine.Persister
	if store != nil {
		recorder = store
		persister = store
	}

	guard := risk.NewGuard(estimator, classifier, sectors, book, c, m, recorder)
	sizer := risk.NewSizer(c)
	trailer := trailing.NewEngine(c, m)
	coordinator := profit.NewCoordinator(c, profit.NewMomentumDetector(), m)

	eng := engine.New(c, guard, sizer, trailer, coordinator, book, source, engine.LogAdapter{}, persister, m)
	if store != nil {
		restorePositions(eng, store)
	}

	startMetricsServer(ctx, c)
	startPriceStream(ctx, c, eng, m)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("engine stopped with error")
		}
	}()

	waitForShutdown(cancel, &wg)
}

func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

func initializeProvider(c cfg.Settings) engine.PriceSource {
	if c.ProviderMode == "static" {
		log.Info().Msg("using static price provider")
		return binance.NewStatic()
	}
	return binance.NewREST(c.BaseURL, c.RESTTimeout)
}

func restorePositions(eng *engine.Engine, store *storage.Store) {
	positions, err := store.LoadPositions()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted positions")
		return
	}
	if len(positions) > 0 {
		eng.Restore(positions)
		log.Info().Int("count", len(positions)).Msg("restored positions from storage")
	}
}

// startPriceStream feeds live last prices into the engine. Static mode
// runs without a stream; the engine then resolves prices per tick.
func startPriceStream(ctx context.Context, c cfg.Settings, eng *engine.Engine, m *metrics.Metrics) {
	if c.ProviderMode != "live" {
		return
	}
	ticks := make(chan binance.Ticker, 64)
	errors := make(chan error, 32)

	ws := binance.NewWS(c.WsURL)
	go func() {
		if err := ws.Stream(ctx, common.AnchorSymbols, ticks, errors); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("price stream ended")
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticks:
				eng.SetPrice(t.Symbol, t.Price)
			case err := <-errors:
				m.WSReconnects.Inc()
				log.Debug().Err(err).Msg("price stream error")
			}
		}
	}()
}

func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func waitForShutdown(cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()
	wg.Wait()
}
