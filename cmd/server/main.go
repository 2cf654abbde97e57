package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-recorder/internal/capture"
	"hls-recorder/internal/capture/mic"
	"hls-recorder/internal/hls"
	"hls-recorder/internal/muxer"
	"hls-recorder/internal/muxer/opus"
	"hls-recorder/internal/platform/config"
	"hls-recorder/internal/platform/logger"
	"hls-recorder/internal/platform/metrics"
	"hls-recorder/internal/recorder"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.Load(); err != nil && !config.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	port := config.GetEnv("PORT", "8080")
	windowSize := config.GetEnvInt("SLIDING_WINDOW_SIZE", hls.DefaultWindowSize)
	cacheSize := config.GetEnvInt("SEGMENT_CACHE_SIZE", hls.DefaultCacheSize)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	base, err := sessionConfig()
	if err != nil {
		log.Error("invalid recording configuration", "error", err)
		os.Exit(1)
	}

	provider, closeProvider, err := captureProvider(log)
	if err != nil {
		log.Error("capture source unavailable", "error", err)
		os.Exit(1)
	}
	defer closeProvider()

	permission, err := capture.ParsePermission(config.GetEnv("RECORD_PERMISSION", "prompt"))
	if err != nil {
		log.Error("invalid RECORD_PERMISSION", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	ctrl := recorder.NewController(
		capture.NewPermissions(permission, nil),
		func() recorder.Capture { return capture.NewPipeline(provider, log) },
		func() recorder.Muxer { return muxer.New(log, opus.Option()) },
		log,
		met,
	)

	repo := hls.NewInMemoryRepository()
	svc := hls.NewService(repo, windowSize)
	cache, err := hls.NewSegmentCache(cacheSize)
	if err != nil {
		log.Error("segment cache", "error", err)
		os.Exit(1)
	}
	recordings := hls.NewRecordings(ctrl, svc, cache, base, log, met)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveStreams(repo.ActiveStreamCount()) }).ServeHTTP(w, r)
	})
	hls.NewHandler(svc, cache, log, met).Routes(r)
	hls.NewRecordingHandler(recordings, log).Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"sliding_window_size", windowSize,
		"segment_duration", base.SegmentDuration,
		"preset", base.Preset.String(),
		"record_permission", permission.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping recorder and draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if id, err := recordings.Stop(ctx); err != nil {
		log.Error("stop recording", "stream_id", string(id), "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// sessionConfig builds the default recording configuration from the environment.
func sessionConfig() (recorder.Configuration, error) {
	cfg := recorder.DefaultConfiguration()
	cfg.SegmentDuration = config.GetEnvInt("SEGMENT_DURATION", cfg.SegmentDuration)
	cfg.StartTimeOffset = config.GetEnvDuration("START_TIME_OFFSET", cfg.StartTimeOffset)
	cfg.ShouldOptimizeForNetworkUse = config.GetEnvBool("OPTIMIZE_FOR_NETWORK_USE", cfg.ShouldOptimizeForNetworkUse)

	if s := config.GetEnv("PRESET", ""); s != "" {
		p, err := recorder.ParsePreset(s)
		if err != nil {
			return cfg, err
		}
		cfg.Preset = p
	}

	var settings recorder.OutputSettings
	if err := config.LoadYAML(config.GetEnv("OUTPUT_SETTINGS_FILE", ""), &settings); err != nil {
		return cfg, err
	}
	if len(settings) > 0 {
		cfg.OutputSettings = settings
	}
	return cfg, cfg.Validate()
}

// captureProvider opens the input selected by CAPTURE_SOURCE.
func captureProvider(log *slog.Logger) (capture.Provider, func(), error) {
	switch source := config.GetEnv("CAPTURE_SOURCE", "microphone"); source {
	case "microphone":
		p, err := mic.New(log)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case "wav":
		p, err := capture.NewWAVProvider(config.GetEnv("WAV_INPUT", "input.wav"), config.GetEnvBool("WAV_LOOP", true), log)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown CAPTURE_SOURCE %q", source)
	}
}
