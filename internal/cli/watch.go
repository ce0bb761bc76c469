package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run every agent on an interval and serve metrics",
	Long: `Watch runs all agents, then the correlation pass, every --interval until
interrupted. Breaker state, rate-limit denials, run outcomes and compound
signal counts are exposed for Prometheus at /metrics.

Example:
  signalwatch watch --interval 15m --metrics-addr :9108`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 15*time.Minute, "time between runs")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "metrics listen address (default from config, empty disables)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := watchMetricsAddr
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}
	if addr != "" {
		srv := metricsServer(addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.WithError(err).Error("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.log.WithField("addr", addr).Info("serving metrics")
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		started := time.Now()
		out, err := ingest(ctx, a, nil, true)
		fields := logrus.Fields{
			"agents":   len(out.Results),
			"failed":   failedAgents(out.Results),
			"duration": time.Since(started).Round(time.Millisecond).String(),
		}
		if out.Correlation != nil {
			fields["compound_signals"] = len(out.Correlation.Created)
		}
		if err != nil {
			a.log.WithError(err).WithFields(fields).Error("watch cycle failed")
		} else {
			a.log.WithFields(fields).Info("watch cycle finished")
		}

		select {
		case <-ctx.Done():
			a.log.Info("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
