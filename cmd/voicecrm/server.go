package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kalambet/voicecrm/internal/api"
	"github.com/kalambet/voicecrm/internal/config"
	"github.com/kalambet/voicecrm/internal/extract"
	"github.com/kalambet/voicecrm/internal/logger"
	"github.com/kalambet/voicecrm/internal/pipeline"
	"github.com/kalambet/voicecrm/internal/provider"
	"github.com/kalambet/voicecrm/internal/speech"
	"github.com/kalambet/voicecrm/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve extraction and history tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

// aiStack is the provider client plus the two model-backed steps built on it.
type aiStack struct {
	client      *provider.Client
	transcriber *speech.Transcriber
	extractor   *extract.Extractor
}

func newAIStack(cfg config.Config) aiStack {
	client := provider.NewClient(provider.Config{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
	})
	return aiStack{
		client:      client,
		transcriber: speech.NewTranscriber(client, cfg.AI.TranscribeModel, cfg.AI.TranscribeLanguage),
		extractor:   extract.NewExtractor(client, cfg.AI.ExtractModel),
	}
}

func runServer() error {
	printVersion()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("closing storage")
		}
	}()
	logStorage(ctx, log, store, cfg.Storage.DataDir)

	ai := newAIStack(cfg)
	if !ai.client.HasAPIKey() {
		printWarning("%v; /process-voice will fail until it is set", provider.ErrMissingAPIKey)
	}

	handler := api.NewHandler(api.Deps{
		Store:          store,
		Voice:          pipeline.New(ai.transcriber, ai.extractor, cfg.Upload.TempDir),
		Log:            log,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		AllowedOrigins: cfg.CORS.Origins(),
	})

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("voicecrm listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func logStorage(ctx context.Context, log *logger.Logger, store *storage.Store, dataDir string) {
	n, err := store.CountInteractions(ctx)
	if err != nil {
		log.WithError(err).Warn("counting stored interactions")
		return
	}
	log.WithFields(logrus.Fields{"data_dir": dataDir, "interactions": n}).Info("storage opened")
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()
	logStorage(ctx, log, store, cfg.Storage.DataDir)

	ai := newAIStack(cfg)
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Extractor: ai.extractor,
	}, version)

	log.Info("MCP server started (stdio transport)")
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
