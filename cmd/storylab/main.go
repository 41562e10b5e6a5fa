// main package for the storylab service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"

	"github.com/nicekate/storylab/internal/artifact"
	"github.com/nicekate/storylab/internal/config"
	"github.com/nicekate/storylab/internal/core"
	"github.com/nicekate/storylab/internal/gateway"
	"github.com/nicekate/storylab/internal/narration"
	"github.com/nicekate/storylab/internal/notify"
	"github.com/nicekate/storylab/internal/server"
	"github.com/nicekate/storylab/internal/story"
)

const (
	logFileName     = "storylab.log"
	shutdownTimeout = 10 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func buildNotifier(cfg *config.Config, log *logger.Logger) (core.Notifier, func(), error) {
	if cfg.NATS.URL == "" {
		return notify.Nop{}, func() {}, nil
	}

	notifier, err := notify.New(
		cfg.NATS.URL,
		cfg.NATS.NarrationCreatedSubject,
		cfg.NATS.SoundEffectCreatedSubject,
		log,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create NATS notifier: %w", err)
	}

	return notifier, notifier.Close, nil
}

func buildServer(cfg *config.Config, log *logger.Logger, notifier core.Notifier) *server.Server {
	chatClient := gateway.NewChatClient(
		cfg.LLM.BaseURL,
		cfg.Credentials.LLMAPIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
	)

	zhClient := gateway.NewMiniMaxClient(
		cfg.Narration.ZhBaseURL,
		cfg.Credentials.MiniMaxAPIKey,
		cfg.Credentials.MiniMaxGroupID,
		cfg.Narration.ZhModel,
		cfg.Narration.ZhSampleRate,
		cfg.Narration.ZhBitrate,
		cfg.Narration.ZhFormat,
	)

	enClient := gateway.NewReplicateClient(
		cfg.Narration.EnBaseURL,
		cfg.Credentials.ReplicateAPIToken,
		cfg.Narration.EnModelVersion,
		cfg.Narration.EnSpeed,
		time.Duration(cfg.Narration.PollIntervalSeconds)*time.Second,
		cfg.Narration.PollMaxAttempts,
	)

	effectClient := gateway.NewElevenLabsClient(
		cfg.SoundEffects.BaseURL,
		cfg.Credentials.ElevenLabsAPIKey,
	)

	store := artifact.New(cfg.Server.PublicDir, log)
	storyService := story.NewService(chatClient, log)
	synthesizer := narration.NewSynthesizer(zhClient, enClient, log)

	return server.New(cfg, log, store, notifier, storyService, synthesizer, effectClient)
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	notifier, closeNotifier, err := buildNotifier(cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to set up notifier: %v", err)

		return err
	}
	defer closeNotifier()

	srv := buildServer(cfg, finalLog, notifier)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)

	go func() {
		finalLog.System("StoryLab listening on %s", cfg.Server.ListenAddr)
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		finalLog.System("Shutdown signal received.")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			return fmt.Errorf("failed to shut down cleanly: %w", shutdownErr)
		}

		return nil
	case serveErr := <-errChan:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", serveErr)
		}

		return nil
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
