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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mofgen/internal/adapters/httpapi"
	"mofgen/internal/core"
)

const readHeaderTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var (
		addr  string
		tools toolFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			toolOpts, err := tools.options(a.cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := a.newServer(ctx, toolOpts...)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, srv.close()) }()
			return srv.run(ctx, a.cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	tools.register(cmd)
	return cmd
}

// server bundles the HTTP server with the service and job worker it drives.
type server struct {
	http   *http.Server
	svc    *core.Service
	worker *httpapi.Worker
	logger core.Logger
}

func (a *app) newServer(ctx context.Context, extra ...core.Option) (*server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, err
	}
	metrics := core.MultiMetricsRecorder{prom, core.NewExpvarMetricsRecorder("")}
	opts := append([]core.Option{core.WithMetricsRecorder(metrics)}, extra...)
	svc, err := a.openService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	worker := httpapi.NewWorker(svc, a.cfg.Server.QueueSize, a.logger).WithRetention(a.cfg.Server.JobRetention)
	handler := httpapi.NewRouter(svc,
		httpapi.WithJobs(worker),
		httpapi.WithLogger(a.logger),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	)
	return &server{
		http: &http.Server{
			Addr:              a.cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		svc:    svc,
		worker: worker,
		logger: a.logger,
	}, nil
}

// run serves until ctx is done, then drains within shutdownTimeout.
func (s *server) run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.worker.Start()
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve %s: %w", s.http.Addr, err)
		}
	case <-ctx.Done():
		s.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("shutdown: %w", err))
	}
	if err := s.worker.Stop(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("stop worker: %w", err))
	}
	return serveErr
}

func (s *server) close() error {
	return s.svc.Close()
}
