package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/maiphh/ocr/internal/common"
	"github.com/maiphh/ocr/internal/engine"
	"github.com/maiphh/ocr/internal/export"
	"github.com/maiphh/ocr/internal/llm"
	"github.com/maiphh/ocr/internal/ocr"
	"github.com/maiphh/ocr/internal/pdfsplit"
	"github.com/maiphh/ocr/internal/pipeline"
	"github.com/maiphh/ocr/internal/preview"
	"github.com/maiphh/ocr/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := preview.NewStore(cfg.Preview.CacheDir, logger)
	if err != nil {
		logger.Error("failed to init preview store", "error", err)
		os.Exit(1)
	}

	ocrClient := ocr.NewClient(ocr.Config{
		BaseURL: cfg.OCR.BaseURL,
		Timeout: cfg.OCR.Timeout,
	}, logger)
	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		RatePerSec:  cfg.LLM.RatePerSec,
	}, logger)
	splitter := pdfsplit.NewPopplerSplitter(pdfsplit.Config{}, logger)

	eng := engine.New(engine.Config{
		PreviewMaxAssets: cfg.Preview.MaxAssets,
		Pipeline: pipeline.Config{
			OCREngine:      cfg.OCR.DefaultEngine,
			OCRLangs:       cfg.OCR.DefaultLangs,
			LanguagePref:   cfg.Pipeline.LanguagePref,
			SchemaVersion:  cfg.Pipeline.SchemaVersion,
			MaxRetries:     cfg.Pipeline.MaxRetries,
			MaxPromptChars: cfg.Pipeline.MaxPromptChars,
		},
	}, store, splitter, ocrClient, llmClient, logger)

	srv := server.New(eng, export.NewService(logger), logger)
	httpSrv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     srv.Routes(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
