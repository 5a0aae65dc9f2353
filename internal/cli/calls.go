package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"call-compass-go/internal/actionable"
	"call-compass-go/internal/app"
	"call-compass-go/internal/views"
)

func callsCommand(o *options) *cobra.Command {
	var f views.Filter
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List calls of the data source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, true, func(ctx context.Context, a *app.App) error {
				rows := a.Table.Rows(f)
				out := cmd.OutOrStdout()
				return o.emit(out, rows, func() {
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tDATE\tAGENT\tOUTCOME\tSCORE\tTAGS")
					for _, r := range rows {
						score := "-"
						if r.Score != nil {
							score = fmt.Sprintf("%.1f", *r.Score)
						}
						fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t%s\t%s\n",
							r.ID, r.Date, r.Time, r.Agent,
							outcomeColor(r.Outcome()).Sprint(r.Outcome()),
							score, strings.Join(r.Tags, ", "))
					}
					tw.Flush()
					fmt.Fprintf(out, "%d calls\n", len(rows))
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "only calls with this outcome")
	cmd.Flags().StringVar(&f.Operator, "operator", "", "only calls of this agent")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "only calls carrying this tag")
	cmd.Flags().StringVar(&f.Search, "search", "", "case-insensitive text search")
	return cmd
}

func dashboardCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show aggregated statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, true, func(ctx context.Context, a *app.App) error {
				d := a.Dashboard.Stats()
				out := cmd.OutOrStdout()
				return o.emit(out, d, func() {
					headline.Fprintf(out, "Dashboard (%s)\n", a.Dashboard.Source())
					fmt.Fprintf(out, "Total:        %d\n", d.Total)
					fmt.Fprintf(out, "Successful:   %s (%d%%)\n", good.Sprint(d.Successful), d.SuccessRate)
					fmt.Fprintf(out, "Unsuccessful: %s (%d%%)\n", bad.Sprint(d.Unsuccessful), d.UnsuccessRate)
					fmt.Fprintf(out, "Attention:    %s\n", warn.Sprint(d.Attention))
					fmt.Fprintf(out, "Avg duration: %s\n", d.AvgDuration)
					fmt.Fprintf(out, "Analyzed:     %d\n", d.Analyzed)
					for _, t := range d.ProblemTags {
						fmt.Fprintf(out, "  problem %-20s %3d  %s\n", t.Tag, t.Count, t.Impact)
					}
					for _, t := range d.SuccessTags {
						fmt.Fprintf(out, "  success %-20s %3d  %s\n", t.Tag, t.Count, t.Impact)
					}
				})
			})
		},
	}
}

func alertsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate alert rules over the data source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, true, func(ctx context.Context, a *app.App) error {
				alerts := a.Alerts.List()
				out := cmd.OutOrStdout()
				return o.emit(out, alerts, func() {
					if len(alerts) == 0 {
						good.Fprintln(out, "No alerts")
						return
					}
					for _, al := range alerts {
						c := warn
						if al.Priority == actionable.PriorityHigh {
							c = bad
						}
						c.Fprintf(out, "[%s] ", al.Priority)
						fmt.Fprintf(out, "call %s: %s\n", al.CallID, al.Message)
					}
				})
			})
		},
	}
}

func exportCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Write the calls of the data source to a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, true, func(ctx context.Context, a *app.App) error {
				n, err := a.Processor.Export(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return o.emit(out, map[string]any{"path": args[0], "rows": n}, func() {
					good.Fprintf(out, "Exported %d calls to %s\n", n, args[0])
				})
			})
		},
	}
}
