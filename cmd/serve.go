package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/api"
	"github.com/JakeFAU/prospect-ranker/internal/id/uuid"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the ranking API over HTTP",
		Long: `Loads the model once and serves POST /v1/rank alongside health, readiness
and metrics endpoints. The port honors PORT when set. SIGINT and SIGTERM
drain in-flight requests before exit.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, err := appInstance.LoadModel(ctx)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	ranker, err := appInstance.Ranker(model)
	if err != nil {
		return err
	}
	sink, err := appInstance.Sinks(ctx, "")
	if err != nil {
		return err
	}

	apiCfg := api.Config{MaxCompanies: cfg.Server.MaxCompanies, RequestTimeout: cfg.Server.WriteTimeout}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}
	apiServer, err := api.NewServer(apiCfg, api.Dependencies{
		Ranker: ranker,
		IDs:    uuid.NewUUIDGenerator(),
		Sink:   sink,
		Checks: appInstance.ReadinessChecks(),
		Logger: logger.Named("api"),
	})
	if err != nil {
		return err
	}

	port := cfg.Server.Port
	if p, perr := strconv.Atoi(os.Getenv("PORT")); perr == nil && p > 0 {
		port = p
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout + cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
