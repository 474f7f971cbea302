package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vlmd/internal/common/fsutil"
	"vlmd/internal/config"
	"vlmd/internal/engine"
	"vlmd/internal/httpapi"
	"vlmd/internal/media"
	"vlmd/internal/pool"
	"vlmd/internal/serving"
)

func main() {
	var (
		cfgPath       = flag.String("config", "", "Config file (.yaml/.json/.toml), optional")
		addr          = flag.String("addr", "", "HTTP listen address, e.g. :8899")
		modelDir      = flag.String("model-dir", "", "Directory holding the model artifacts")
		modelName     = flag.String("model-name", "", "Model id reported by the API")
		maxConcurrent = flag.Int("max-concurrent", 0, "Number of model slots (concurrent generations)")
		deviceID      = flag.Int("device-id", -1, "Accelerator device id")
		videoRatio    = flag.Float64("video-ratio", 0, "Fraction of video frames sampled, in (0,1]")
		engineName    = flag.String("engine", "", "Inference backend: runner or llama")
		runnerBin     = flag.String("runner-bin", "", "Runner executable for the runner backend")
		apiKey        = flag.String("api-key", "", "API key; empty disables auth")
		logLevel      = flag.String("log-level", "", "zerolog level: trace..panic")
		corsEnabled   = flag.Bool("cors", false, "Enable permissive CORS")
	)
	flag.Parse()

	// Precedence: defaults < config file < environment < explicit flags.
	cfg := config.Default()
	if *cfgPath != "" {
		fileCfg, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg.Overlay(fileCfg)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "config env: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "model-dir":
			cfg.ModelDir = *modelDir
		case "model-name":
			cfg.ModelName = *modelName
		case "max-concurrent":
			cfg.MaxConcurrent = *maxConcurrent
		case "device-id":
			cfg.DeviceID = *deviceID
		case "video-ratio":
			cfg.VideoRatio = *videoRatio
		case "engine":
			cfg.Engine = *engineName
		case "runner-bin":
			cfg.RunnerBin = *runnerBin
		case "api-key":
			cfg.APIKey = *apiKey
		case "log-level":
			cfg.LogLevel = *logLevel
		case "cors":
			cfg.CORSEnabled = *corsEnabled
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if cfg.Engine == "llama" && !engine.LlamaBuilt() {
		log.Fatal().Msg("engine=llama requires a binary built with -tags llama")
	}
	dir, err := fsutil.ExpandHome(cfg.ModelDir)
	if err != nil || !fsutil.PathExists(dir) {
		log.Fatal().Str("model_dir", cfg.ModelDir).Msg("model directory does not exist")
	}
	cfg.ModelDir = dir

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ecfg := engine.Config{
		ModelDir:  cfg.ModelDir,
		DeviceID:  cfg.DeviceID,
		RunnerBin: cfg.RunnerBin,
	}
	elog := log.With().Str("component", "engine").Logger()
	var factory engine.Factory
	switch cfg.Engine {
	case "llama":
		factory = engine.LlamaFactory(ecfg, elog)
	default:
		factory = func(slot int) (engine.Engine, error) {
			return engine.NewRunner(ecfg, elog.With().Int("slot", slot).Logger())
		}
	}

	log.Info().
		Str("model_dir", cfg.ModelDir).
		Str("engine", cfg.Engine).
		Int("slots", cfg.MaxConcurrent).
		Msg("loading model")
	p, err := pool.New(cfg.MaxConcurrent, cfg.AcquireTimeout(), factory, log)
	if err != nil {
		log.Fatal().Err(err).Msg("model load failed")
	}

	resolver := media.NewResolver(media.ResolverConfig{
		FetchTimeout: cfg.FetchTimeout(),
	}, log)
	svc := serving.NewService(&cfg, p, resolver, log)

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.RegisterPoolMetrics(p.Stats)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(&cfg, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("model", cfg.ModelName).
			Bool("auth", cfg.AuthEnabled()).
			Msg("vlmd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := p.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pool close incomplete")
	}
	log.Info().Msg("bye")
}
