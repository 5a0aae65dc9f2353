package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"call-compass-go/internal/app"
	"call-compass-go/internal/httpapi"
	"call-compass-go/internal/types"
)

func serveCommand(o *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the live event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, false, func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.ListenAddr
				}
				if err := a.WatchRules(ctx); err != nil {
					a.Log.WithError(err).Warn("alert rules will not hot-reload")
				}
				src, _ := types.ParseDataSource(o.source)
				if _, err := a.Processor.LoadCalls(ctx, src); err != nil {
					a.Log.WithError(err).Warn("initial call load failed")
				}

				s, hub := a.Server()
				defer hub.Close()
				srv := httpapi.NewHTTPServer(addr, s.Handler())
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()

				headline.Fprintf(cmd.OutOrStdout(), "listening on %s\n", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from COMPASS_LISTEN_ADDR)")
	return cmd
}
