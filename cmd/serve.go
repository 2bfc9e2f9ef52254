package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docbatch/internal/httpapi"
	"docbatch/internal/queue"
	"docbatch/internal/runner"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job API and run jobs as they arrive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if ids := a.queue.RecoverInterrupted(); len(ids) > 0 {
			a.log.WithField("jobs", len(ids)).Info("re-queued interrupted jobs")
		}
		r, err := a.newRunner(ctx, false)
		if err != nil {
			return err
		}

		addr := a.cfg.HTTPAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		apiOpts := []httpapi.Option{
			httpapi.WithStore(runnerStore{runner: r, Store: a.store}),
			httpapi.WithTemplates(a.templates()),
			httpapi.WithLogger(a.log),
		}
		tracker, err := a.tracker(ctx)
		if err != nil {
			return err
		}
		if tracker != nil {
			apiOpts = append(apiOpts, httpapi.WithProgress(tracker))
		}
		api := httpapi.New(a.queue, apiOpts...)
		srv := &http.Server{Addr: addr, Handler: api.Router(), ReadHeaderTimeout: 10 * time.Second}

		runDone := make(chan error, 1)
		go func() {
			summary, err := r.Run(ctx)
			a.log.WithField("jobs", summary.Jobs).Info("runner stopped")
			runDone <- err
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		a.log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-runDone
			return err
		}
		return <-runDone
	},
}

// runnerStore routes API saves through the runner so one writer owns the
// store.
type runnerStore struct {
	runner *runner.Runner
	queue.Store
}

func (s runnerStore) Save(ctx context.Context, _ queue.State) error {
	return s.runner.Save(ctx)
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides DOCBATCH_HTTP_ADDR")

	rootCmd.AddCommand(serveCmd)
}
