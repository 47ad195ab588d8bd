package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"winwatch/internal/awclient"
	"winwatch/internal/collector"
	"winwatch/internal/config"
	"winwatch/internal/event"
	"winwatch/internal/heartbeat"
	"winwatch/internal/ipc"
	"winwatch/internal/logging"
	"winwatch/internal/metrics"
	"winwatch/internal/sink/queued"
	"winwatch/internal/storage"

	sqlitestore "winwatch/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

// Remote is the collector server as the app sees it.
type Remote interface {
	queued.Remote
	Info(ctx context.Context) (*awclient.Info, error)
	BaseURL() string
}

type App struct {
	cfg    *config.Config
	log    *slog.Logger
	stream event.StreamID

	probe    collector.Probe
	remote   Remote
	queue    storage.Queue
	sink     *queued.Sink
	loop     *heartbeat.Loop
	ipc      *ipc.Server
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	closeOnce sync.Once
}

// NewApp checks the display session and builds every component. Any error
// here is fatal: no tick has run yet.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := collector.CheckSession(runtime.GOOS, os.Getenv); err != nil {
		return nil, err
	}
	probe, err := collector.NewProbe()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize window probe: %w", err)
	}

	queue := sqlitestore.NewSQLiteQueue(cfg.Queue.Path, logging.Component(logger, "queue"))
	if err := queue.Init(context.Background()); err != nil {
		probe.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	remote := awclient.New(awclient.Options{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Testing: cfg.Testing,
		Timeout: cfg.ServerTimeout(),
	})
	return newApp(cfg, logger, probe, remote, queue), nil
}

func newApp(cfg *config.Config, logger *slog.Logger, probe collector.Probe, remote Remote, queue storage.Queue) *App {
	if logger == nil {
		logger = logging.Discard()
	}
	hostname, err := os.Hostname()
	if err != nil {
		logger.Warn("Failed to resolve hostname", "error", err)
		hostname = "unknown"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, reg)

	a := &App{
		cfg:      cfg,
		log:      logger,
		stream:   event.NewStreamID(awclient.ClientName(cfg.ClientName, cfg.Testing), hostname),
		probe:    probe,
		remote:   remote,
		queue:    queue,
		registry: reg,
		metrics:  m,
	}
	a.sink = queued.New(remote, queue, queued.Options{
		RetryInterval: cfg.RetryInterval(),
		Logger:        logging.Component(logger, "flusher"),
		Metrics:       m,
	})
	a.loop = heartbeat.New(probe, a.sink, heartbeat.Options{
		Stream:       a.stream,
		PollInterval: cfg.PollInterval(),
		ExcludeTitle: cfg.ExcludeTitle,
		Logger:       logging.Component(logger, "loop"),
		Metrics:      m,
	})
	a.ipc = ipc.NewServer(cfg.SocketPath, a.handleCommand, logging.Component(logger, "ipc"))
	return a
}

// Run blocks until ctx is cancelled or SIGINT/SIGTERM arrives. A component
// that fails for any reason other than shutdown stops the others.
func (a *App) Run(ctx context.Context) (err error) {
	defer func() { err = multierr.Append(err, a.Close()) }()

	if err := a.ipc.Listen(); err != nil {
		return fmt.Errorf("failed to set up socket: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu   sync.Mutex
		errs error
	)
	run := func(name string, fn func(context.Context) error) func() {
		return func() {
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("Component failed", "component", name, "error", err)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}
	}

	a.log.Info("Starting winwatch",
		"bucket", a.stream.BucketID(),
		"server", a.remote.BaseURL(),
		"queue", a.cfg.Queue.Path,
		"socket", a.ipc.Path(),
	)

	var wg conc.WaitGroup
	wg.Go(func() { a.checkServer(ctx) })
	wg.Go(run("loop", a.loop.Run))
	wg.Go(run("flusher", a.sink.Run))
	wg.Go(run("ipc", a.ipc.Serve))
	if a.cfg.Metrics.Addr != "" {
		wg.Go(run("metrics", a.serveMetrics))
	}

	<-ctx.Done()
	a.log.Info("Shutdown signal received, waiting for components")
	wg.Wait()
	a.log.Info("winwatch finished")
	return errs
}

func (a *App) checkServer(ctx context.Context) {
	info, err := a.remote.Info(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.log.Warn("Server unavailable, heartbeats will be queued", "server", a.remote.BaseURL(), "error", err)
		}
		return
	}
	a.log.Info("Connected to server", "server", a.remote.BaseURL(), "hostname", info.Hostname, "version", info.Version)
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.log.Info("Serving metrics", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (a *App) handleCommand(ctx context.Context, cmd ipc.Command) ipc.Response {
	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.Response{Success: true, Message: "pong"}
	case ipc.CmdGetStatus:
		return ipc.Response{Success: true, Data: a.Status(ctx)}
	default:
		return ipc.Response{Success: false, Message: fmt.Sprintf("Unknown command: %s", cmd.Name)}
	}
}

func (a *App) Status(ctx context.Context) ipc.StatusData {
	pending, err := a.sink.Pending(ctx)
	if err != nil {
		a.log.Warn("Failed to read queue depth", "error", err)
	}
	return ipc.StatusData{
		Bucket:       a.stream.BucketID(),
		Server:       a.remote.BaseURL(),
		PollTime:     a.cfg.PollTime,
		ExcludeTitle: a.cfg.ExcludeTitle,
		QueuePending: pending,
		Loop:         a.loop.Status(),
	}
}

// Close releases the probe and the queue. It is safe to call more than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = multierr.Combine(
			wrap("probe", a.probe.Close()),
			wrap("queue", a.queue.Close()),
		)
	})
	return err
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to close %s: %w", what, err)
}
