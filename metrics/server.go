package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	gethprom "github.com/ethereum/go-ethereum/metrics/prometheus"

	"cosmossdk.io/log"
)

const (
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"

	shutdownTimeout = 5 * time.Second
)

// Handler serves the client registry in Prometheus text format plus a liveness probe.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, gethprom.Handler(gethmetrics.DefaultRegistry))
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// StartServer binds addr and serves Handler until ctx is done. A bind failure is
// returned before anything is served.
func StartServer(ctx context.Context, logger log.Logger, addr string) error {
	logger = logger.With("module", "metrics")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to bind metrics server", "address", addr, "err", err)
		return err
	}

	server := &http.Server{
		Handler:           Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "address", ln.Addr().String(), "path", MetricsPath)
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "err", err)
			return err
		}
		logger.Info("metrics server stopped")
		return nil

	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
