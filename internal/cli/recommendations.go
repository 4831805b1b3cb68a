package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/costwatch/internal/api/dto"
	"github.com/pratik-mahalle/costwatch/internal/domain/recommendation"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

func newRecommendationsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "Review cost recommendations",
	}
	cmd.AddCommand(
		newRecommendationsListCmd(o),
		newRecommendationsUpdateCmd(o),
		newRecommendationsSavingsCmd(o),
	)
	return cmd
}

func newRecommendationsListCmd(o *options) *cobra.Command {
	var filter recommendation.Filter
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recommendations, highest cost first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, total, err := a.Recommendations.List(cmd.Context(), filter, limit, 0)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if format := o.outputFormat(); format != "table" {
				if recs == nil {
					recs = []*recommendation.Recommendation{}
				}
				return printOutput(w, format, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(w, "No recommendations found.")
				return nil
			}

			t := NewTable(w, "ID", "SERVICE", "RESOURCE", "PRIORITY", "STATUS", "COST", "SAVINGS")
			for _, r := range recs {
				t.AddRow(
					truncate(r.ID, 40),
					r.Service,
					truncate(r.ResourceID, 40),
					formatSeverity(r.Priority),
					formatStatus(r.Status),
					formatMoney(r.CurrentCost),
					formatMoney(r.EstimatedSavings),
				)
			}
			t.Render()
			fmt.Fprintf(w, "\nShowing %d of %d recommendations\n", len(recs), total)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Status, "status", "", "open, in_progress, implemented or dismissed")
	f.StringVar(&filter.Priority, "priority", "", "high, medium or low")
	f.StringVar(&filter.Service, "service", "", "service name")
	f.IntVar(&limit, "limit", 50, "maximum number of recommendations")
	return cmd
}

func newRecommendationsUpdateCmd(o *options) *cobra.Command {
	var status, actual string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Move a recommendation through review",
		Example: `  costwatch recommendations update rec_ec2_i-123 --status in_progress
  costwatch recommendations update rec_ec2_i-123 --status implemented --actual-savings 95.50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.UpdateRecommendationStatusRequest{Status: status}
			if actual != "" {
				d, err := decimal.NewFromString(actual)
				if err != nil {
					return errors.BadRequest("actual-savings must be a number")
				}
				req.ActualSavings = d
			}
			if err := validateRequest(req); err != nil {
				return err
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Recommendations.UpdateStatus(cmd.Context(), args[0], req.Status, req.ActualSavings)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if format := o.outputFormat(); format != "table" {
				return printOutput(w, format, rec)
			}
			fmt.Fprintf(w, "%s is now %s (actual savings %s)\n", rec.ID, rec.Status, formatMoney(rec.ActualSavings))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "open, in_progress, implemented or dismissed")
	cmd.Flags().StringVar(&actual, "actual-savings", "", "realised monthly savings, kept only when implemented")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newRecommendationsSavingsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "savings",
		Short: "Total estimated savings of open recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			total, err := a.Recommendations.TotalSavings(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			resp := dto.SavingsResponse{TotalSavings: total.Round(2), Currency: "USD"}
			if format := o.outputFormat(); format != "table" {
				return printOutput(w, format, resp)
			}
			fmt.Fprintf(w, "Open savings opportunity: %s %s\n", formatMoney(resp.TotalSavings), resp.Currency)
			return nil
		},
	}
}
