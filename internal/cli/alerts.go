package cli

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/costwatch/internal/api/dto"
	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/validator"
)

func newAlertsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alerts",
		Aliases: []string{"alert-history"},
		Short:   "Inspect and manage raised alerts",
	}

	cmd.AddCommand(
		newAlertsListCmd(o),
		newAlertsGetCmd(o),
		newAlertsAckCmd(o),
		newAlertsResolveCmd(o),
		newAlertsEscalateCmd(o),
		newAlertsMetricsCmd(o),
	)
	return cmd
}

func validateRequest(v interface{}) error {
	if errs := validator.Validate(v); len(errs) > 0 {
		return errors.ValidationError(validator.Join(errs), errs)
	}
	return nil
}

func newAlertsListCmd(o *options) *cobra.Command {
	var req dto.AlertListRequest
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		Example: `  costwatch alerts list --status active --severity critical
  costwatch alerts list --service EC2 --since 2024-01-01 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRequest(req); err != nil {
				return err
			}
			filter := alert.Filter{
				Type:     req.Type,
				Severity: req.Severity,
				Status:   req.Status,
				Service:  req.Service,
				Region:   req.Region,
			}
			if req.Since != "" {
				filter.Since, _ = time.Parse(cost.DateLayout, req.Since)
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			alerts, total, err := a.Alerts.List(cmd.Context(), filter, limit, offset)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if format := o.outputFormat(); format != "table" {
				if alerts == nil {
					alerts = []*alert.Alert{}
				}
				return printOutput(w, format, alerts)
			}
			if len(alerts) == 0 {
				fmt.Fprintln(w, "No alerts found.")
				return nil
			}

			t := NewTable(w, "ID", "TYPE", "SEVERITY", "STATUS", "SERVICE", "REGION", "COST", "CREATED")
			for _, al := range alerts {
				t.AddRow(
					truncate(al.ID, 48),
					al.Type,
					formatSeverity(al.Severity),
					formatStatus(al.Status),
					al.Service,
					al.Region,
					formatMoney(al.CurrentCost),
					formatTime(al.CreatedAt),
				)
			}
			t.Render()
			fmt.Fprintf(w, "\nShowing %d of %d alerts\n", len(alerts), total)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Type, "type", "", "alert type")
	f.StringVar(&req.Severity, "severity", "", "info, warning or critical")
	f.StringVar(&req.Status, "status", "", "active, acknowledged or resolved")
	f.StringVar(&req.Service, "service", "", "service name")
	f.StringVar(&req.Region, "region", "", "region")
	f.StringVar(&req.Since, "since", "", "only alerts created on or after this date (YYYY-MM-DD)")
	f.IntVar(&limit, "limit", 50, "maximum number of alerts")
	f.IntVar(&offset, "offset", 0, "number of alerts to skip")
	return cmd
}

func newAlertsGetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			al, err := a.Alerts.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return o.printAlert(cmd, al)
		},
	}
}

func newAlertsAckCmd(o *options) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:     "ack <id>",
		Aliases: []string{"acknowledge"},
		Short:   "Acknowledge an active alert",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			al, err := a.Alerts.Acknowledge(cmd.Context(), args[0], o.actor(actor))
			if err != nil {
				return err
			}
			return o.printAlert(cmd, al)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "who is acknowledging (default: config actor or $USER)")
	return cmd
}

func newAlertsResolveCmd(o *options) *cobra.Command {
	var actor string
	var req dto.ResolveAlertRequest

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRequest(req); err != nil {
				return err
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			al, err := a.Alerts.Resolve(cmd.Context(), args[0], o.actor(actor), req.Notes)
			if err != nil {
				return err
			}
			return o.printAlert(cmd, al)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "who is resolving (default: config actor or $USER)")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "resolution notes")
	return cmd
}

func newAlertsEscalateCmd(o *options) *cobra.Command {
	var req dto.EscalateAlertRequest

	cmd := &cobra.Command{
		Use:   "escalate <id>",
		Short: "Attach an escalation level (1-3) to an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRequest(req); err != nil {
				return err
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			al, err := a.Alerts.Escalate(cmd.Context(), args[0], req.Level)
			if err != nil {
				return err
			}
			return o.printAlert(cmd, al)
		},
	}

	cmd.Flags().IntVar(&req.Level, "level", 0, "escalation level, 1 to 3")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func newAlertsMetricsCmd(o *options) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Summarise alert activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 || days > 90 {
				return errors.BadRequest("days must be between 1 and 90")
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.Alerts.Metrics(cmd.Context(), days)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if format := o.outputFormat(); format != "table" {
				return printOutput(w, format, m)
			}

			fmt.Fprintf(w, "Last %d days: %d alerts, %.1f%% acknowledged, %.1fh average resolution\n\n",
				m.PeriodDays, m.TotalAlerts, m.AcknowledgmentRate, m.AvgResolutionHours)
			t := NewTable(w, "DIMENSION", "VALUE", "COUNT")
			addCounts(t, "severity", m.BySeverity)
			addCounts(t, "status", m.ByStatus)
			addCounts(t, "type", m.ByType)
			addCounts(t, "service", m.ByService)
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "period in days (1-90)")
	return cmd
}

func addCounts(t *Table, dimension string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AddRow(dimension, k, strconv.Itoa(counts[k]))
	}
}

func (o *options) printAlert(cmd *cobra.Command, al *alert.Alert) error {
	w := cmd.OutOrStdout()
	if format := o.outputFormat(); format != "table" {
		return printOutput(w, format, al)
	}

	t := NewTable(w, "FIELD", "VALUE")
	t.AddRow("ID", al.ID)
	t.AddRow("TYPE", al.Type)
	t.AddRow("SEVERITY", formatSeverity(al.Severity))
	t.AddRow("STATUS", formatStatus(al.Status))
	t.AddRow("SERVICE", al.Service)
	t.AddRow("REGION", al.Region)
	t.AddRow("COST", formatMoney(al.CurrentCost))
	t.AddRow("THRESHOLD", formatMoney(al.Threshold))
	t.AddRow("MESSAGE", al.Message)
	if al.AcknowledgedBy != "" {
		t.AddRow("ACKNOWLEDGED BY", al.AcknowledgedBy)
	}
	if al.ResolvedBy != "" {
		t.AddRow("RESOLVED BY", al.ResolvedBy)
	}
	if al.ResolutionNotes != "" {
		t.AddRow("NOTES", al.ResolutionNotes)
	}
	if al.Escalation != nil {
		t.AddRow("ESCALATION", fmt.Sprintf("level %d", al.Escalation.Level))
	}
	t.AddRow("CREATED", formatTime(al.CreatedAt))
	t.Render()
	return nil
}
