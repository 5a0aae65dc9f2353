package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"call-compass-go/internal/app"
	"call-compass-go/internal/config"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/types"
)

var version = "0.4.0"

var (
	headline = color.New(color.FgCyan, color.Bold)
	good     = color.New(color.FgGreen)
	bad      = color.New(color.FgRed)
	warn     = color.New(color.FgYellow)
)

// options are the flags every command shares.
type options struct {
	source string
	json   bool
}

// NewRootCommand builds the compass command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "compass",
		Short:         "Call analytics client",
		Long:          headline.Sprint("compass") + " loads recorded calls from the analysis backend, runs analyses and keeps the results.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.source, "source", "s", "all", "data source: all, cloud or local")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of text")

	root.AddCommand(
		versionCommand(),
		callsCommand(opts),
		dashboardCommand(opts),
		alertsCommand(opts),
		analyzeCommand(opts),
		customCommand(opts),
		transcribeCommand(opts),
		previewCommand(opts),
		chatCommand(opts),
		historyCommand(opts),
		uploadCommand(opts),
		exportCommand(opts),
		processCommand(opts),
		importCommand(opts),
		tagsCommand(opts),
		cacheCommand(opts),
		serveCommand(opts),
	)
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "compass %s\n", version)
		},
	}
}

// run builds the app, optionally loads the call set of --source, and hands over to fn.
func (o *options) run(cmd *cobra.Command, load bool, fn func(ctx context.Context, a *app.App) error) error {
	src, err := types.ParseDataSource(o.source)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Configure(cfg.Environment, cfg.LogLevel)
	logger.SetOutput(cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Build(ctx, cfg, logger.New())
	if err != nil {
		return err
	}
	defer a.Close()

	if load {
		if _, err := a.Processor.LoadCalls(ctx, src); err != nil {
			return fmt.Errorf("load calls: %w", err)
		}
	}
	return fn(ctx, a)
}

// emit prints v as JSON when --json is set, otherwise calls text.
func (o *options) emit(w io.Writer, v any, text func()) error {
	if !o.json {
		text()
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outcomeColor(s string) *color.Color {
	switch s {
	case types.ResultSuccessful:
		return good
	case types.ResultUnsuccessful:
		return bad
	}
	return warn
}
