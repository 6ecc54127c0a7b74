package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/signalsfoundry/blocking-sandbox/internal/config"
	"github.com/signalsfoundry/blocking-sandbox/internal/control"
	"github.com/signalsfoundry/blocking-sandbox/internal/control/grpcapi"
	"github.com/signalsfoundry/blocking-sandbox/internal/httpapi"
	"github.com/signalsfoundry/blocking-sandbox/internal/logging"
	"github.com/signalsfoundry/blocking-sandbox/internal/observability"
	"github.com/signalsfoundry/blocking-sandbox/internal/sim/session"
	"github.com/signalsfoundry/blocking-sandbox/timectrl"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// flagOverrides holds command-line values that win over the config file
// and the environment. Empty values leave the config untouched.
type flagOverrides struct {
	grpcAddr  string
	httpAddr  string
	clockMode string
	logLevel  string
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	var ov flagOverrides
	flag.StringVar(&ov.grpcAddr, "grpc-addr", "", "TCP address for the SandboxControl gRPC service (overrides config)")
	flag.StringVar(&ov.httpAddr, "http-addr", "", "TCP address for REST, WebSocket and /metrics (overrides config)")
	flag.StringVar(&ov.clockMode, "clock", "", "tick pacing: realtime or accelerated (overrides config)")
	flag.StringVar(&ov.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, ov)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandbox-server: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(cfg.Logging())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, nil, nil); err != nil {
		log.Error(context.Background(), "sandbox server failed", logging.Err(err))
		os.Exit(1)
	}
}

// loadConfig layers defaults, the YAML file, the environment and flags, in
// that order, and validates the result.
func loadConfig(path string, ov flagOverrides) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if cfg, err = cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	if ov.grpcAddr != "" {
		cfg.Server.GRPCAddr = ov.grpcAddr
	}
	if ov.httpAddr != "" {
		cfg.Server.HTTPAddr = ov.httpAddr
	}
	if ov.clockMode != "" {
		cfg.Session.ClockMode = ov.clockMode
	}
	if ov.logLevel != "" {
		cfg.Log.Level = ov.logLevel
	}
	return cfg, cfg.Validate()
}

// run serves until ctx is cancelled or a listener fails. Nil listeners are
// opened from the configured addresses; an empty address disables that
// surface.
func run(ctx context.Context, cfg config.Config, log logging.Logger, grpcLis, httpLis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rpcMetrics, err := observability.NewRPCCollector(reg)
	if err != nil {
		return fmt.Errorf("register request metrics: %w", err)
	}
	sessionMetrics, err := observability.NewSessionCollector(reg)
	if err != nil {
		return fmt.Errorf("register session metrics: %w", err)
	}

	mgr := session.NewManager(
		session.WithLogger(log),
		session.WithClock(timectrl.NewTimeController(time.Now(), cfg.ClockMode())),
		session.WithMetrics(sessionMetrics),
		session.WithStopGrace(cfg.Session.StopGrace),
		session.WithFeedBuffer(cfg.Session.FeedBuffer),
		session.WithDefaultConfig(cfg.ResolverConfig()),
	)
	dispatcher := control.NewDispatcher(mgr, log)

	if grpcLis == nil && cfg.Server.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr); err != nil {
			return fmt.Errorf("listen grpc %s: %w", cfg.Server.GRPCAddr, err)
		}
	}
	if httpLis == nil && cfg.Server.HTTPAddr != "" {
		if httpLis, err = net.Listen("tcp", cfg.Server.HTTPAddr); err != nil {
			if grpcLis != nil {
				_ = grpcLis.Close()
			}
			return fmt.Errorf("listen http %s: %w", cfg.Server.HTTPAddr, err)
		}
	}

	errCh := make(chan error, 2)

	var grpcServer *grpc.Server
	if grpcLis != nil {
		grpcServer = grpcapi.NewGRPCServer(grpcapi.NewServer(dispatcher, log), log, rpcMetrics)
		log.Info(ctx, "serving SandboxControl gRPC", logging.String("addr", grpcLis.Addr().String()))
		go func() {
			if err := grpcServer.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var httpServer *http.Server
	if httpLis != nil {
		api := httpapi.New(dispatcher,
			httpapi.WithLogger(log),
			httpapi.WithRPCCollector(rpcMetrics),
			httpapi.WithGatherer(reg),
		)
		httpServer = &http.Server{
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		log.Info(ctx, "serving REST and WebSocket", logging.String("addr", httpLis.Addr().String()))
		go func() {
			if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down sandbox server")
	case runErr = <-errCh:
		log.Error(context.Background(), "listener failed; shutting down", logging.Err(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "http shutdown incomplete", logging.Err(err))
			_ = httpServer.Close()
		}
	}
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "session shutdown incomplete", logging.Err(err))
	}
	if grpcServer != nil {
		stopGRPC(shutdownCtx, grpcServer)
	}
	return runErr
}

// stopGRPC drains in-flight RPCs, falling back to a hard stop when ctx
// expires first. Open Watch streams would otherwise hold GracefulStop.
func stopGRPC(ctx context.Context, srv *grpc.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
		<-done
	}
}
