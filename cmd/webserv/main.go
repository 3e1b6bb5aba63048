// Command webserv runs the event-driven origin server core against a
// YAML configuration file, mirroring the teacher's cmd/caddy: a small
// main() that delegates everything to a cobra command tree.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nullware/webserv/internal/configfile"
	"github.com/nullware/webserv/internal/logging"
	"github.com/nullware/webserv/internal/metrics"
	"github.com/nullware/webserv/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "webserv",
		Short:         "A single-process, event-driven HTTP/1.1 origin server.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(runCmd())
	return root
}

func runCmd() *cobra.Command {
	var configPath string
	var metricsAddr string
	var debug bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the server in the foreground",
		Example: `  $ webserv run --config webserv.yaml
  $ webserv run --config webserv.yaml --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, metricsAddr, debug)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "webserv.yaml", "path to the YAML configuration file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled if empty)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level, human-readable logging")
	return cmd
}

func runServer(configPath, metricsAddr string, debug bool) error {
	log, err := logging.New(debug)
	if err != nil {
		return fmt.Errorf("webserv: build logger: %w", err)
	}
	defer log.Sync()

	cfg, err := configfile.Load(configPath)
	if err != nil {
		return fmt.Errorf("webserv: load config: %w", err)
	}

	rec := metrics.NewRecorder()

	srv, err := server.New(cfg, log.Named(logging.Server), rec)
	if err != nil {
		return fmt.Errorf("webserv: construct server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("webserv: bind listeners: %w", err)
	}

	var admin *http.Server
	if metricsAddr != "" {
		admin = startAdminServer(metricsAddr, rec, log.Named(logging.Admin))
	}

	stop := make(chan struct{})
	go trapSignals(srv, log.Named(logging.Server), stop)

	runErr := srv.Run(stop)
	if admin != nil {
		_ = admin.Close()
	}
	return runErr
}

// startAdminServer implements SPEC_FULL.md §7.6/§6.3: an ordinary
// net/http server exposing Prometheus metrics, deliberately outside
// the reactor's own byte-accurate request path.
func startAdminServer(addr string, rec *metrics.Recorder, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rec.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("admin server stopped", zap.Error(err))
		}
	}()
	log.Info("metrics endpoint listening", zap.String("addr", addr))
	return srv
}

// trapSignals implements SPEC_FULL.md §7.5's graceful shutdown, in the
// manner of the teacher's caddy/sigtrap.go: SIGINT/SIGTERM trigger a
// drain rather than an immediate exit.
func trapSignals(srv *server.Server, log *zap.Logger, stop chan<- struct{}) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs
	log.Info("received shutdown signal, draining", zap.String("signal", sig.String()))
	srv.Shutdown()
}
