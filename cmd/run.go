package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docbatch/internal/batch"
	"docbatch/internal/runner"
	"docbatch/internal/tui"
)

var (
	runFollow bool
	runNoTUI  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run queued jobs by priority",
	Long:  "run processes queued jobs until none are left, or with --follow until interrupted. Jobs interrupted by ctrl+c go back to the queue.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var logOut io.Writer
		if !runNoTUI {
			// the progress view owns the terminal
			logOut = io.Discard
		}
		a, err := openApp(cmd, logOut)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if ids := a.queue.RecoverInterrupted(); len(ids) > 0 {
			a.log.WithField("jobs", len(ids)).Info("re-queued interrupted jobs")
		}

		var (
			updates chan tui.Update
			uiDone  chan struct{}
			extra   []runner.Option
		)
		if !runNoTUI {
			var tracked []*batch.BatchJob
			for _, job := range orderedJobs(a.queue) {
				if job.Status.Runnable() {
					tracked = append(tracked, job)
				}
			}
			updates = make(chan tui.Update, 64)
			feed := tui.Feed(updates)
			extra = append(extra, runner.WithSink(feed), runner.WithObserver(feed))

			ctx, stop = context.WithCancel(ctx)
			defer stop()
			program := tea.NewProgram(tui.NewModel(updates, tracked))
			uiDone = make(chan struct{})
			go func() {
				_, _ = program.Run()
				// quitting the view stops the run
				stop()
				close(uiDone)
			}()
		}

		r, err := a.newRunner(ctx, !runFollow, extra...)
		if err != nil {
			if updates != nil {
				close(updates)
				<-uiDone
			}
			return err
		}

		if uiDone != nil {
			// keep the runner unblocked if the view quits first
			go func() {
				<-uiDone
				for range updates {
				}
			}()
		}
		summary, runErr := r.Run(ctx)
		if updates != nil {
			close(updates)
			<-uiDone
		}
		if runErr != nil {
			return runErr
		}

		fmt.Fprintln(os.Stdout, tui.RenderSummary(summaryRows(summary)))
		if summary.Requeued > 0 {
			fmt.Fprintf(os.Stdout, "%d interrupted jobs were put back in the queue.\n", summary.Requeued)
		}
		return nil
	},
}

func summaryRows(s runner.Summary) []tui.SummaryRow {
	return []tui.SummaryRow{
		{Label: "Jobs run", Value: fmt.Sprintf("%d", s.Jobs)},
		{Label: "Completed", Value: fmt.Sprintf("%d", s.Completed)},
		{Label: "Failed", Value: fmt.Sprintf("%d", s.Failed)},
		{Label: "Paused or cancelled", Value: fmt.Sprintf("%d", s.Stopped)},
		{Label: "Files", Value: fmt.Sprintf("%d", s.Files)},
		{Label: "Outputs written", Value: fmt.Sprintf("%d", s.Outputs)},
		{Label: "Space saved (bytes)", Value: fmt.Sprintf("%d", s.BytesSaved)},
	}
}

func init() {
	runCmd.Flags().BoolVarP(&runFollow, "follow", "f", false, "keep waiting for new jobs")
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "log to stderr instead of showing progress")

	rootCmd.AddCommand(runCmd)
}
