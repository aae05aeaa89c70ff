package cmd

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cashflow-reconciler/internal/api"
	"cashflow-reconciler/internal/metrics"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 20 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation API over HTTP",
	Long: `Serve exposes fetch, import and reconciliation as JSON endpoints:

  POST /api/v1/statements/fetch
  POST /api/v1/statements/import      (multipart: file, company_id, account_code)
  POST /api/v1/reconciliations/run
  GET  /healthz
  GET  /metrics                        (Prometheus)

The server stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("server")

	app, err := buildApplication(ctx, appConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	recorder := metrics.NewRecorder()
	handler := api.NewHandler(metrics.Instrument(app.service, recorder), logger.GetGlobalLogger())
	handler.MaxUploadBytes = appConfig.HTTP.MaxUploadBytes

	router := handler.Router()
	router.Handle("/metrics", recorder.Handler()).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         appConfig.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  appConfig.HTTP.ReadTimeout,
		WriteTimeout: appConfig.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("Starting server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.NetworkError(errors.CodeConnectionFailed, server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "shutdown", err)
	}
	log.Info("Server stopped")
	return nil
}
