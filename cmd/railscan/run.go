package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/railscan"
	"github.com/e7canasta/railscan/internal/config"
	"github.com/e7canasta/railscan/internal/gstreamer"
	"github.com/e7canasta/railscan/internal/report"
	"github.com/e7canasta/railscan/internal/status"
	"github.com/e7canasta/railscan/internal/telemetry"
	"github.com/e7canasta/railscan/internal/throughput"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errEngineUnavailable = errors.New("media engine unavailable")

// newEngine is replaced in tests.
var newEngine = func() (railscan.Engine, error) {
	e := gstreamer.New()
	if err := e.CheckAvailable(); err != nil {
		return nil, fmt.Errorf("%w: %v", errEngineUnavailable, err)
	}
	return e, nil
}

// notifySignals is replaced in tests.
var notifySignals = func(c chan<- os.Signal) func() {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	return func() { signal.Stop(c) }
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [uri]",
		Short: "Build the pipeline, play it and supervise it until it stops",
		Long: `Build the five-stage pipeline (source, mux, inference, overlay, sink),
request PLAYING and block on the message bus until end of stream or an error.
Ctrl+C requests end of stream; a second Ctrl+C forces it.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd, args)
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Debug))
			if err := config.Validate(cfg); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runPipeline executes one supervised session with its side services.
func runPipeline(ctx context.Context, cfg config.AppConfig, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	preflight(engine, cfg.Pipeline)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.New(reg)
	meter := throughput.NewMeter(throughput.DefaultWindow)

	ctrl, err := railscan.NewController(engine, cfg.Pipeline,
		railscan.WithStdout(stdout),
		railscan.WithStderr(stderr),
		railscan.WithObserver(metrics),
		railscan.WithObserver(meter),
	)
	if err != nil {
		return err
	}

	var srv *status.Server
	if cfg.MetricsAddr != "" {
		router := status.NewRouter(ctrl, reg, func() any { return meter.Summary() })
		srv = status.New(cfg.MetricsAddr, router)
		if err := srv.Listen(); err != nil {
			return usageError{err}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error { return srv.Run(gctx) })
	}
	if cfg.StatsInterval > 0 {
		g.Go(func() error {
			logThroughput(gctx, meter, cfg.StatsInterval)
			return nil
		})
	}
	g.Go(func() error {
		forwardInterrupts(gctx, ctrl)
		return nil
	})

	outcome, runErr := ctrl.Execute()
	cancel()
	if err := g.Wait(); err != nil {
		slog.Warn("railscan: side service failed", "error", err)
	}

	meter.Log()
	if cfg.ReportDir != "" {
		writeReport(cfg, outcome, runErr, meter)
	}
	return runErr
}

// preflight logs every configured plugin the registry does not know, so
// all of them are reported before Build stops at the first one.
func preflight(engine railscan.Engine, cfg railscan.PipelineConfig) {
	reg, ok := engine.(interface{ HasPlugin(string) bool })
	if !ok {
		return
	}
	for _, st := range cfg.Stages() {
		if !reg.HasPlugin(st.Plugin) {
			slog.Warn("railscan: plugin not found in registry", "stage", st.Kind.String(), "plugin", st.Plugin)
		}
	}
}

// forwardInterrupts turns SIGINT/SIGTERM into Controller.Interrupt calls
// until ctx is done.
func forwardInterrupts(ctx context.Context, ctrl *railscan.Controller) {
	sigCh := make(chan os.Signal, 2)
	stop := notifySignals(sigCh)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			slog.Info("railscan: received signal", "signal", sig.String())
			ctrl.Interrupt()
		}
	}
}

func logThroughput(ctx context.Context, meter *throughput.Meter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			meter.Log()
		}
	}
}

func writeReport(cfg config.AppConfig, outcome railscan.Outcome, runErr error, meter *throughput.Meter) {
	s := report.NewSession(cfg.Pipeline, outcome, runErr, exitCode(runErr))
	summary := meter.Summary()
	s.Throughput = &summary

	path, err := report.Write(cfg.ReportDir, s)
	if err != nil {
		slog.Error("railscan: failed to write session report", "error", err)
		return
	}
	slog.Info("railscan: session report written", "path", path)
}
