package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bnema/spin-accounts-cli/internal/adapters/render/report"
	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/jobs"
	"github.com/bnema/spin-accounts-cli/internal/log"
)

const (
	daemonShutdownTimeout = 30 * time.Second
	daemonRecentRuns      = 20
)

func newDaemonCmd(app *app) *cobra.Command {
	var listen string
	var runNow bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled spins and serve /metrics and /healthz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = app.cfg.Daemon.Listen
			}
			return runDaemon(cmd.Context(), app, listen, runNow)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default daemon.listen)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Run a free spin pass immediately on start")

	return cmd
}

func runDaemon(ctx context.Context, app *app, listen string, runNow bool) error {
	log.Configure(log.Config{Level: app.cfg.Log.Level})
	logger := log.WithComponent("daemon")

	eng, err := app.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close(context.WithoutCancel(ctx)) }()

	loc, err := jobs.ParseLocation(app.cfg.Daemon.Timezone)
	if err != nil {
		return err
	}

	passes := jobs.NewPasses(eng.rt, eng.batches, app.accounts, jobs.PassConfig{
		PaidSpinType:  eng.rt.Settings.PaidSpinType,
		AutoThreshold: app.cfg.PaidSpin.AutoThreshold,
	})

	scheduler := jobs.NewScheduler(loc)
	if err := scheduler.Add(ctx, passes.FreeSpinJob(app.cfg.Daemon.SpinSchedule)); err != nil {
		return err
	}
	if app.cfg.PaidSpin.AutoEnabled {
		if err := scheduler.Add(ctx, passes.PaidSpinJob(app.cfg.Daemon.PaidSpinSchedule)); err != nil {
			return err
		}
	}

	if app.cfg.Daemon.WatchSessions {
		watcher := jobs.NewSessionWatcher(app.cfg.Paths.SessionsDir, eng.rt, 0)
		if err := watcher.Start(ctx); err != nil {
			return err
		}
	}

	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}
	server := &http.Server{
		Handler:           newDaemonRouter(daemonDeps{engine: eng, scheduler: scheduler}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", listener.Addr().String()).Msg("daemon listening")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	scheduler.Start()
	if runNow {
		go func() {
			if _, err := passes.FreeSpins(ctx); err != nil {
				logger.Error().Err(err).Msg("initial free spin pass failed")
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("daemon server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), daemonShutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	logger.Info().Msg("daemon stopped")

	return errors.Join(errs...)
}

type daemonDeps struct {
	engine    *engine
	scheduler *jobs.Scheduler
}

type healthResponse struct {
	Status       string `json:"status"`
	Accounts     int    `json:"accounts"`
	LiveSessions int    `json:"live_sessions"`
}

type jobResponse struct {
	Name string     `json:"name"`
	Spec string     `json:"spec"`
	Next *time.Time `json:"next,omitempty"`
	Prev *time.Time `json:"prev,omitempty"`
}

func newDaemonRouter(deps daemonDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:       "ok",
			Accounts:     len(deps.engine.rt.Pool.Names()),
			LiveSessions: deps.engine.rt.Pool.Live(),
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/jobs", func(w http.ResponseWriter, _ *http.Request) {
		entries := deps.scheduler.Entries()
		out := make([]jobResponse, 0, len(entries))
		for _, entry := range entries {
			job := jobResponse{Name: entry.Name, Spec: entry.Spec}
			if !entry.Next.IsZero() {
				job.Next = &entry.Next
			}
			if !entry.Prev.IsZero() {
				job.Prev = &entry.Prev
			}
			out = append(out, job)
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := deps.engine.ledger.Recent(r.Context(), daemonRecentRuns)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeRunsJSON(w, runs)
	})

	return r
}

func writeRunsJSON(w http.ResponseWriter, runs []domain.BatchRun) {
	out := make([]json.RawMessage, 0, len(runs))
	for _, run := range runs {
		data, err := report.MarshalRun(run)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		out = append(out, data)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
