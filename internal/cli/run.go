package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/services"
)

func newRunCmd(o *options) *cobra.Command {
	var reportType string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis pass",
		Long: `Run a single pass and record it in the execution history.

Report types:
  trend_analysis   (default) trend, anomaly, forecast, budget and recommendation evaluation
  alerting         threshold, service threshold, anomaly and budget alerting
  daily_summary    yesterday's spend summary
  weekly_summary   last 7 days summary
  monthly_summary  month-to-date summary`,
		Example: `  costwatch run
  costwatch run --report-type alerting -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, err := services.JobTypeFor(reportType)
			if err != nil {
				return err
			}
			return o.trigger(cmd, jobType)
		},
	}

	cmd.Flags().StringVar(&reportType, "report-type", "", "pass to run (see above)")
	return cmd
}

func newAlertPassCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "alert",
		Short: "Run the alerting pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.trigger(cmd, job.JobTypeAlerting)
		},
	}
}

func newCollectCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Pull billing data from the enabled providers into the cost store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.trigger(cmd, job.JobTypeCollection)
		},
	}
}

func (o *options) trigger(cmd *cobra.Command, jobType job.JobType) error {
	a, err := o.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	exec, err := a.Jobs.Trigger(cmd.Context(), jobType, services.TriggerCLI)
	if exec == nil {
		return err
	}
	if perr := o.printExecution(cmd.OutOrStdout(), exec); perr != nil {
		return perr
	}
	if exec.Status == job.ExecutionStatusFailed {
		return fmt.Errorf("%s run failed: %s", exec.JobType, exec.ErrorMessage)
	}
	return nil
}

func (o *options) printExecution(w io.Writer, exec *job.Execution) error {
	if format := o.outputFormat(); format != "table" {
		return printOutput(w, format, exec)
	}

	t := NewTable(w, "FIELD", "VALUE")
	t.AddRow("ID", exec.ID)
	t.AddRow("TYPE", exec.JobType.String())
	t.AddRow("TRIGGER", exec.Trigger)
	t.AddRow("STATUS", formatStatus(string(exec.Status)))
	t.AddRow("STARTED", formatTime(exec.StartedAt))
	t.AddRow("DURATION", strconv.FormatInt(exec.DurationMs, 10)+"ms")
	if exec.ErrorMessage != "" {
		t.AddRow("ERROR", exec.ErrorMessage)
	}
	t.Render()

	if len(exec.Result) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, exec.Result, "", "  "); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s\n", buf.String())
	}
	return nil
}
