package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

func newRunsCmd(o *options) *cobra.Command {
	var jobType, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := job.ExecutionFilter{
				JobType: job.JobType(jobType),
				Status:  job.ExecutionStatus(status),
			}
			if jobType != "" && !filter.JobType.IsValid() {
				return errors.BadRequest("unknown job type: " + jobType)
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			execs, total, err := a.Jobs.ListExecutions(cmd.Context(), filter, limit, 0)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if format := o.outputFormat(); format != "table" {
				if execs == nil {
					execs = []*job.Execution{}
				}
				return printOutput(w, format, execs)
			}
			if len(execs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}

			t := NewTable(w, "ID", "TYPE", "TRIGGER", "STATUS", "STARTED", "DURATION", "ERROR")
			for _, e := range execs {
				t.AddRow(
					e.ID,
					e.JobType.String(),
					e.Trigger,
					formatStatus(string(e.Status)),
					formatTime(e.StartedAt),
					strconv.FormatInt(e.DurationMs, 10)+"ms",
					truncate(e.ErrorMessage, 40),
				)
			}
			t.Render()
			fmt.Fprintf(w, "\nShowing %d of %d runs\n", len(execs), total)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&jobType, "job-type", "", "filter by pass, e.g. alerting or daily_summary")
	f.StringVar(&status, "status", "", "running, completed, partial or failed")
	f.IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}
