package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdforganizer/internal/config"
	"github.com/local/pdforganizer/internal/converter"
	"github.com/local/pdforganizer/internal/fetch"
	"github.com/local/pdforganizer/internal/imagerender"
	logpkg "github.com/local/pdforganizer/internal/logger"
	"github.com/local/pdforganizer/internal/metrics"
	"github.com/local/pdforganizer/internal/organize"
	"github.com/local/pdforganizer/internal/server"
	"github.com/local/pdforganizer/internal/stats"
	"github.com/local/pdforganizer/internal/statuscheck"
	"github.com/local/pdforganizer/internal/tempstore"
)

var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Service:      cfg.Logging.Service,
		Environment:  cfg.Logging.Environment,
		Version:      version,
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Temp store, with the optional createdAt index
	var index tempstore.Index
	var reserved []string
	if cfg.Store.IndexPath != "" {
		bi, err := tempstore.OpenBoltIndex(cfg.Store.IndexPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Store.IndexPath).Msg("failed to open temp index")
		}
		defer bi.Close()
		index = bi
		reserved = append(reserved, bi.Path())
	}
	store, err := tempstore.New(cfg.Store.Dir, tempstore.Options{Index: index, Reserved: reserved})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init temp store")
	}

	sweeper := tempstore.NewSweeper(store, cfg.Store.Retention, cfg.Store.SweepInterval)
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	// Activity counter
	var counter stats.Counter = &stats.MemoryCounter{}
	var pinger statuscheck.Pinger
	if cfg.Stats.RedisURL != "" {
		rc, err := stats.NewRedisCounter(cfg.Stats.RedisURL, cfg.Stats.Key)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, activity counter is in-memory")
		} else {
			defer rc.Close()
			counter, pinger = stats.NewBreaker(rc, 0, 0), rc
		}
	}
	recorder := stats.NewAsyncRecorder(counter, cfg.Stats.Timeout)
	defer recorder.Wait()

	office := converter.NewLibreOffice(cfg.Converter.Binary, cfg.Converter.Workers, cfg.Converter.Timeout)
	color := imagerender.ColorRGB
	if cfg.Render.Gray {
		color = imagerender.ColorGray
	}
	renderer := imagerender.New(cfg.Render.DPI, cfg.Render.Quality, color)

	var fetcher *fetch.Fetcher
	if cfg.Fetch.Enabled {
		fetcher = fetch.New(fetch.Options{
			MaxBytes:   cfg.Upload.MaxFileBytes,
			HTTPClient: &http.Client{Timeout: cfg.Fetch.Timeout},
		})
	}

	srv := server.New(server.Dependencies{
		Store:          store,
		Organizer:      organize.New(),
		Converter:      converter.NewService(office, renderer),
		Fetcher:        fetcher,
		Recorder:       recorder,
		Counter:        counter,
		StatsTimeout:   cfg.Stats.Timeout,
		Status:         statuscheck.New(statuscheck.Options{Counter: pinger, TempDir: store.Dir(), Soffice: office.Binary()}),
		Upload:         cfg.Upload,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Service:        cfg.Logging.Service,
		Version:        version,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutdown complete")
}
