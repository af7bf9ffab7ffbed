package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"challasaath/internal/config"
	"challasaath/internal/handlers"
	"challasaath/internal/logging"
	"challasaath/internal/relay"
	"challasaath/internal/storage"
	"challasaath/internal/templates"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	pretty := flag.Bool("pretty", false, "human readable logs")
	flag.Parse()
	logging.Debug = *debug

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.LogLevel, *pretty)

	commit, buildDate := readVersion()
	templates.SetCommit(commit, buildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The room directory is optional; without it the relay is purely in memory.
	var store *storage.Store
	if cfg.DatabaseURL != "" {
		db, err := storage.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("open room directory")
		}
		store = storage.NewStore(db)
		// Rooms never survive a restart.
		if err := store.Purge(ctx); err != nil {
			log.Fatal().Err(err).Msg("purge room directory")
		}
	}

	hub := relay.NewHub(relay.Options{
		IdleTTL:   cfg.RoomIdleTTL,
		PeerRate:  cfg.PeerRate,
		PeerBurst: cfg.PeerBurst,
		Store:     store,
	})
	h := handlers.NewHandler(hub, store)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("commit", commit).Msg("Challas Aath relay listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("relay stopped")
	}
	log.Info().Msg("relay stopped")
}
