package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"call-compass-go/internal/app"
	"call-compass-go/internal/store"
)

func chatCommand(o *options) *cobra.Command {
	var keep bool
	var f struct {
		status, operator, date, duration, tag string
	}
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the analytics assistant about the calls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				filters := a.Chat.Filters(ctx)
				if !keep {
					filters.Status, filters.Operator, filters.Date, filters.Duration, filters.Tag = f.status, f.operator, f.date, f.duration, f.tag
				}
				reply, err := a.Processor.Chat(ctx, strings.Join(args, " "), filters)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return o.emit(out, reply, func() {
					fmt.Fprintln(out, reply.Reply)
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.status, "status", "", "only calls with this outcome")
	cmd.Flags().StringVar(&f.operator, "operator", "", "only calls of this agent")
	cmd.Flags().StringVar(&f.date, "date", "", "only calls of this date (dd.mm.yyyy)")
	cmd.Flags().StringVar(&f.duration, "duration", "", "short, medium or long")
	cmd.Flags().StringVar(&f.tag, "tag", "", "only calls carrying this tag")
	cmd.Flags().BoolVar(&keep, "keep-filters", false, "reuse the filters saved by the previous chat")
	return cmd
}

func historyCommand(o *options) *cobra.Command {
	var wipe bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the saved chat conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				if wipe {
					if err := a.Chat.ClearMessages(ctx); err != nil {
						return err
					}
					good.Fprintln(out, "Chat history cleared")
					return nil
				}
				msgs := a.Processor.History(ctx)
				return o.emit(out, msgs, func() {
					for _, m := range msgs {
						who := headline
						if m.Sender == store.SenderUser {
							who = good
						}
						who.Fprintf(out, "%s ", m.Sender)
						fmt.Fprintf(out, "(%s) %s\n", m.Timestamp.Format("02.01 15:04"), m.Content)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&wipe, "clear", false, "delete the saved conversation")
	return cmd
}
