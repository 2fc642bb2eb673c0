package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpDelivery "github.com/meshivanshsinghh/opinionflow/internal/delivery/http"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "port to listen on (overrides configuration)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logrus.WithFields(logrus.Fields{
		"environment":  cfg.Server.Environment,
		"port":         cfg.Server.Port,
		"cache":        cfg.Cache.Type,
		"vector_store": cfg.VectorStore.Type,
		"llm":          cfg.LLM.Provider,
	}).Info("[SERVER] starting OpinionFlow v1.0.0")

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := httpDelivery.NewHandler(a.products, a.reviews, a.analysis, a.store, a.tasks)
	router := httpDelivery.SetupRouter(cfg, handler, a.kv)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("[SERVER] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logrus.Info("[SERVER] shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("[SERVER] http shutdown incomplete")
	}
	if err := a.tasks.Drain(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("[SERVER] background tasks cancelled before finishing")
	}

	logrus.Info("[SERVER] stopped")
	return nil
}
