package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docbatch/internal/batch"
	"docbatch/internal/queue"
	redisrepo "docbatch/internal/repository/redis"
	"docbatch/internal/tui"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs in run order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		jobs := orderedJobs(a.queue)
		if listStatus != "" {
			filtered := jobs[:0]
			for _, job := range jobs {
				if string(job.Status) == listStatus {
					filtered = append(filtered, job)
				}
			}
			jobs = filtered
		}
		fmt.Fprintln(os.Stdout, tui.RenderJobs(jobs))

		stats := a.queue.Stats()
		fmt.Fprintln(os.Stdout, tui.RenderSummary([]tui.SummaryRow{
			{Label: "Jobs", Value: fmt.Sprintf("%d", stats.Total)},
			{Label: "Queued", Value: fmt.Sprintf("%d", stats.ByStatus[batch.JobQueued]+stats.ByStatus[batch.JobPending])},
			{Label: "Processing", Value: fmt.Sprintf("%d", stats.ByStatus[batch.JobProcessing])},
			{Label: "Files done", Value: fmt.Sprintf("%d/%d", stats.Completed, stats.TotalFiles)},
			{Label: "Files failed", Value: fmt.Sprintf("%d", stats.Failed)},
		}))
		return nil
	},
}

// orderedJobs lists jobs in dispatch order.
func orderedJobs(q *queue.Queue) []*batch.BatchJob {
	ids := q.PriorityOrder()
	out := make([]*batch.BatchJob, 0, len(ids))
	for _, id := range ids {
		if job, ok := q.GetJob(id); ok {
			out = append(out, job)
		}
	}
	return out
}

var showCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		job, err := a.findJob(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, tui.RenderJob(job))

		tracker, err := a.tracker(cmd.Context())
		if err != nil {
			return err
		}
		if tracker != nil {
			rows, err := trackedRows(cmd.Context(), tracker, job)
			if err != nil {
				a.log.WithError(err).Warn("read tracked progress")
			} else if len(rows) > 0 {
				fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
			}
		}
		return nil
	},
}

// trackedRows summarises the live per-file progress a runner published for
// job. It is empty when nothing was tracked.
func trackedRows(ctx context.Context, tracker *redisrepo.ProgressTracker, job *batch.BatchJob) ([]tui.SummaryRow, error) {
	done, total, err := tracker.Completed(ctx, job.ID)
	if err != nil || total == 0 {
		return nil, err
	}
	files, err := tracker.Files(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	rows := []tui.SummaryRow{{Label: "Tracked", Value: fmt.Sprintf("%d/%d files done", done, total)}}
	for _, f := range job.Files {
		p, ok := files[f.ID]
		if !ok {
			continue
		}
		value := fmt.Sprintf("%s %d%%", p.Status, p.Percent)
		if p.Error != "" {
			value += " " + p.Error
		}
		rows = append(rows, tui.SummaryRow{Label: f.Name, Value: value})
	}
	return rows, nil
}

// controlCmd builds a command that applies one queue operation to a job and
// saves the result.
func controlCmd(use, short, refused string, op func(q *queue.Queue, id string) bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.close()

			job, err := a.findJob(args[0])
			if err != nil {
				return err
			}
			if !op(a.queue, job.ID) {
				return fmt.Errorf("job %s is %s: %s", tui.ShortID(job.ID), job.Status, refused)
			}
			if err := a.save(cmd.Context()); err != nil {
				return err
			}
			a.log.WithField("job_id", job.ID).Debug(use)
			if updated, ok := a.queue.GetJob(job.ID); ok {
				fmt.Fprintln(os.Stdout, tui.RenderJobs([]*batch.BatchJob{updated}))
			} else {
				a.forgetRemoved(cmd.Context(), []string{job.ID})
				fmt.Fprintf(os.Stdout, "removed %s\n", tui.ShortID(job.ID))
			}
			return nil
		},
	}
}

var priorityCmd = &cobra.Command{
	Use:   "priority <job-id> <low|normal|high|critical>",
	Short: "Change the priority of a job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority := batch.JobPriority(args[1])
		if !priority.Valid() {
			return fmt.Errorf("unknown priority %q", args[1])
		}
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		job, err := a.findJob(args[0])
		if err != nil {
			return err
		}
		if !a.queue.ChangePriority(job.ID, priority) {
			return fmt.Errorf("job %s: priority unchanged", tui.ShortID(job.ID))
		}
		if err := a.save(cmd.Context()); err != nil {
			return err
		}
		updated, _ := a.queue.GetJob(job.ID)
		fmt.Fprintln(os.Stdout, tui.RenderJobs([]*batch.BatchJob{updated}))
		return nil
	},
}

var clearAll bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove completed jobs, or every job with --all",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		before := a.queue.PriorityOrder()
		var n int
		if clearAll {
			n = a.queue.ClearAllJobs()
		} else {
			n = a.queue.ClearCompletedJobs()
		}
		if err := a.save(cmd.Context()); err != nil {
			return err
		}
		a.forgetRemoved(cmd.Context(), before)
		fmt.Fprintf(os.Stdout, "removed %d jobs\n", n)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "only jobs with this status")
	clearCmd.Flags().BoolVar(&clearAll, "all", false, "remove every job")

	rootCmd.AddCommand(
		listCmd,
		showCmd,
		priorityCmd,
		clearCmd,
		controlCmd("pause", "Pause a running job", "only processing jobs pause", (*queue.Queue).PauseJob),
		controlCmd("resume", "Put a paused job back in the queue", "only paused jobs resume", (*queue.Queue).ResumeJob),
		controlCmd("cancel", "Cancel a job", "finished jobs cannot be cancelled", (*queue.Queue).CancelJob),
		controlCmd("retry", "Re-queue failed files that have retries left", "no failed file has retries left", (*queue.Queue).RetryFailedFiles),
		controlCmd("remove", "Delete a job", "job could not be removed", (*queue.Queue).RemoveJob),
	)
}
