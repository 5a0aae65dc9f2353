package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"call-compass-go/internal/app"
	"call-compass-go/internal/gateway"
	"call-compass-go/internal/types"
)

// selectTargets selects ids, or every loaded call when all is set.
func selectTargets(a *app.App, ids []string, all bool) {
	if all {
		ids = types.IDs(a.State.CurrentCalls())
	}
	a.Processor.Select(ids)
}

func analyzeCommand(o *options) *cobra.Command {
	var (
		all       bool
		questions []string
	)
	cmd := &cobra.Command{
		Use:   "analyze [call-id...]",
		Short: "Run the standard analysis on calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(questions) > gateway.MaxKeyQuestions {
				warn.Fprintf(cmd.ErrOrStderr(), "only the first %d key questions are sent\n", gateway.MaxKeyQuestions)
			}
			return o.run(cmd, true, func(ctx context.Context, a *app.App) error {
				selectTargets(a, args, all)
				res, err := a.Processor.Analyze(ctx, nil, questions)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return o.emit(out, res, func() {
					for _, c := range res {
						score := "-"
						if c.Score != nil {
							score = fmt.Sprintf("%.1f", *c.Score)
						}
						headline.Fprintf(out, "%s ", c.ID)
						fmt.Fprintf(out, "score %s  %s\n", score, outcomeColor(c.Outcome()).Sprint(c.Outcome()))
						if c.KeyInsight != "" {
							fmt.Fprintf(out, "  insight: %s\n", c.KeyInsight)
						}
						if c.Recommendation != "" {
							fmt.Fprintf(out, "  recommendation: %s\n", c.Recommendation)
						}
						for i, ans := range []string{c.KeyQuestion1Answer, c.KeyQuestion2Answer, c.KeyQuestion3Answer} {
							if ans != "" {
								fmt.Fprintf(out, "  Q%d: %s\n", i+1, ans)
							}
						}
					}
					good.Fprintf(out, "Analyzed %d calls\n", len(res))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "analyze every call of the data source")
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "key question to answer (repeatable, up to 3)")
	return cmd
}

func customCommand(o *options) *cobra.Command {
	var (
		all    bool
		prompt string
	)
	cmd := &cobra.Command{
		Use:   "custom [call-id...]",
		Short: "Run a prompt-driven analysis on calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, true, func(ctx context.Context, a *app.App) error {
				selectTargets(a, args, all)
				res, err := a.Processor.CustomAnalyze(ctx, nil, prompt)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return o.emit(out, res, func() {
					if res.Result != "" {
						fmt.Fprintln(out, res.Result)
					}
					for _, c := range res.Calls {
						headline.Fprintf(out, "%s ", c.ID)
						fmt.Fprintln(out, c.CustomResponse)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "analyze every call of the data source")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "question to ask about the calls")
	return cmd
}

func transcribeCommand(o *options) *cobra.Command {
	var all, force bool
	cmd := &cobra.Command{
		Use:   "transcribe [call-id...]",
		Short: "Transcribe call recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, true, func(ctx context.Context, a *app.App) error {
				selectTargets(a, args, all)
				res, err := a.Processor.Transcribe(ctx, nil, force)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return o.emit(out, res, func() {
					for _, r := range res.Calls {
						c := good
						switch r.Status {
						case types.TranscriptionError:
							c = bad
						case types.TranscriptionExisting:
							c = warn
						}
						fmt.Fprintf(out, "%s  %s\n", r.ID, c.Sprint(r.Status))
					}
					if res.Message != "" {
						fmt.Fprintln(out, res.Message)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "transcribe every call of the data source")
	cmd.Flags().BoolVar(&force, "force", false, "transcribe again even when a transcription exists")
	return cmd
}

func previewCommand(o *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "preview [call-id...]",
		Short: "Ask for advice and suggested key questions before analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, true, func(ctx context.Context, a *app.App) error {
				if len(args) > 0 || all {
					selectTargets(a, args, all)
				}
				res, err := a.Processor.Preview(ctx)
				if err != nil {
					warn.Fprintf(cmd.ErrOrStderr(), "preview unavailable: %v\n", err)
				}
				out := cmd.OutOrStdout()
				return o.emit(out, res, func() {
					headline.Fprintln(out, "Report")
					fmt.Fprintln(out, res.PreviewReport)
					headline.Fprintln(out, "Advice")
					fmt.Fprintln(out, res.LLMAdvice)
					headline.Fprintln(out, "Key questions")
					for i, q := range res.KeyQuestions {
						fmt.Fprintf(out, "%d. %s\n", i+1, q)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "preview every call of the data source")
	return cmd
}
