package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"tankarena.gg/internal/config"
	"tankarena.gg/internal/logging"
	persistlog "tankarena.gg/internal/persistence/log"
	"tankarena.gg/internal/persistence/r2s3"
	"tankarena.gg/internal/sim/broadcast"
	"tankarena.gg/internal/sim/tuning"
	"tankarena.gg/internal/sim/world"
	"tankarena.gg/internal/telemetry"
	"tankarena.gg/internal/transport/ws"
)

func main() {
	var (
		configFile = flag.String("config", "", "optional server config file (yaml, json or toml)")
		_          = flag.String("addr", ":8080", "http listen address")
		_          = flag.String("world", "arena", "world id")
		_          = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		_          = flag.Int64("seed", 0, "world seed (0 uses the tuning seed)")
		_          = flag.String("journal", "", "directory for tick journals (empty to disable)")
		_          = flag.String("log_level", "info", "trace, debug, info, warn or error")
		_          = flag.String("log_format", "auto", "json, console or auto")
	)
	flag.Parse()

	v := viper.New()
	// Explicit flags win over the config file and environment.
	flag.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})
	cfg, err := config.Load(v, *configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Console: cfg.LogFormat == "console",
		Auto:    cfg.LogFormat == "auto",
	})
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server")
	}
}

var flagKeys = map[string]string{
	"addr":       "addr",
	"world":      "world_id",
	"tuning":     "tuning_path",
	"seed":       "seed",
	"journal":    "journal_dir",
	"log_level":  "log_level",
	"log_format": "log_format",
}

func run(cfg config.Server, logger zerolog.Logger) error {
	tun, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}

	w, err := world.New(world.WorldConfig{
		ID:      cfg.WorldID,
		Tuning:  tun,
		Seed:    cfg.Seed,
		EpochMs: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	w.SetLogger(logging.Component(logger, "world"))

	worldInst, err := telemetry.NewWorld(w.PlayerCount)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	w.SetInstruments(worldInst)
	hubInst, err := telemetry.NewBroadcast()
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	hub := broadcast.NewHub(hubInst, logging.Component(logger, "broadcast"))
	w.SetPublisher(hub)

	var journal *persistlog.Journal
	if cfg.JournalDir != "" {
		dir := filepath.Join(cfg.JournalDir, fmt.Sprintf("%s-%d", w.ID(), w.EpochMs()))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("journal dir: %w", err)
		}
		journal = persistlog.NewJournal(dir, persistlog.Header{
			WorldID:      w.ID(),
			Seed:         w.Seed(),
			EpochMs:      w.EpochMs(),
			TuningDigest: tun.Digest(),
			Tuning:       string(tun.Raw()),
		})
		w.SetTickLogger(journal)
		logger.Info().Str("dir", dir).Msg("journal enabled")
	}

	var mirror *r2s3.Mirror
	if journal != nil && cfg.Archive.Enabled() {
		client, err := r2s3.New(r2s3.Options{
			Endpoint:        cfg.Archive.Endpoint,
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKey,
			SecretAccessKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		mirror = r2s3.NewMirror(client, r2s3.MirrorOptions{BaseDir: cfg.JournalDir, Prefix: cfg.Archive.Prefix}, logging.Component(logger, "archive"))
		journal.OnFileClosed(mirror.Enqueue)
		logger.Info().Str("bucket", cfg.Archive.Bucket).Str("prefix", cfg.Archive.Prefix).Msg("journal archive enabled")
	}

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan error, 1)
	go func() { worldDone <- w.Run(ctx) }()

	rt := routes{
		world:         w,
		hub:           hub,
		mirror:        mirror,
		ws:            ws.NewServer(w, hub, logging.Component(logger, "ws")),
		enableAdmin:   cfg.EnableAdminHTTP,
		enableMetrics: cfg.EnableMetrics,
	}
	if !cfg.EnableAdminHTTP {
		logger.Info().Msg("admin endpoints disabled (TANKARENA_ENABLE_ADMIN_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().
		Str("addr", cfg.Addr).
		Str("world", w.ID()).
		Int64("seed", w.Seed()).
		Int("tick_rate_hz", w.TickRateHz()).
		Str("tuning_digest", tun.Digest()).
		Msg("listening")
	serveErr := srv.ListenAndServe()
	cancel()
	<-worldDone

	if journal != nil {
		if err := journal.Close(); err != nil {
			logger.Error().Err(err).Msg("close journal")
		}
	}
	mirror.Close()
	if serveErr != nil && serveErr != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", serveErr)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
