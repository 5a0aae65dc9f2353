package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"call-compass-go/internal/app"
	"call-compass-go/internal/types"
)

func uploadCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.xlsx>",
		Short: "Upload an Excel workbook of calls to the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				report, err := a.Processor.Upload(ctx, args[0])
				out := cmd.OutOrStdout()
				if p := report.Preflight; p != nil {
					fmt.Fprintf(out, "Preflight: %d rows, %d with recording\n", p.Rows, p.WithRecord)
					for _, m := range p.Missing {
						warn.Fprintf(out, "  missing column: %s\n", m)
					}
				}
				if err != nil {
					return err
				}
				return o.emit(out, report, func() {
					r := report.Result
					good.Fprintf(out, "Uploaded %s: %d rows\n", args[0], r.Rows)
					if r.Message != "" {
						fmt.Fprintln(out, r.Message)
					}
					if r.Warning != "" {
						warn.Fprintln(out, r.Warning)
					}
				})
			})
		},
	}
}

func processCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Have the backend process every uploaded call",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				res, err := a.Processor.ProcessAll(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return o.emit(out, res, func() {
					fmt.Fprintln(out, res.Message)
					if res.Success != nil {
						good.Fprintf(out, "succeeded: %d\n", *res.Success)
					}
					if res.Failed != nil {
						bad.Fprintf(out, "failed: %d\n", *res.Failed)
					}
				})
			})
		},
	}
}

func importCommand(o *options) *cobra.Command {
	var opts types.ImportOptions
	var exts string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import audio files from the backend's watch folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if exts != "" {
				opts.Extensions = strings.Split(exts, ",")
			}
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				res, err := a.Processor.ImportFolder(ctx, opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return o.emit(out, res, func() {
					fmt.Fprintf(out, "found %d, imported %d, transcribed %d, analyzed %d\n",
						res.TotalFound, res.Imported, res.Transcribed, res.Analyzed)
				})
			})
		},
	}
	cmd.Flags().StringVar(&exts, "ext", "", "comma-separated extensions, e.g. .mp3,.wav")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "import at most this many files")
	cmd.Flags().BoolVar(&opts.Transcribe, "transcribe", false, "transcribe imported files")
	cmd.Flags().BoolVar(&opts.Analyze, "analyze", false, "analyze imported files")
	return cmd
}

func tagsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "Rebuild and list the tag catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				tags, err := a.Processor.RefreshTags(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return o.emit(out, tags, func() {
					for _, t := range tags {
						fmt.Fprintln(out, t)
					}
				})
			})
		},
	}
}

func cacheCommand(o *options) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persisted analysis cache",
	}
	cache.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print cached analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				records := a.Cache.Get(ctx)
				out := cmd.OutOrStdout()
				return o.emit(out, records, func() {
					for _, r := range records {
						fmt.Fprintf(out, "%s  %s\n", r.ID, r.KeyInsight)
					}
					fmt.Fprintf(out, "%d cached\n", len(records))
				})
			})
		},
	})
	cache.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				if err := a.Processor.ClearCache(ctx); err != nil {
					return err
				}
				good.Fprintln(cmd.OutOrStdout(), "Analysis cache cleared")
				return nil
			})
		},
	})
	return cache
}
