// Package serve provides the serve command running the read-only HTTP API
package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/internal/api"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

// Command creates and returns the serve command
func Command(rt *runtime.Context) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve defects, repairs and metrics over HTTP",
		Long: `Serve exposes the configured store read-only under /api/v1 and the
Prometheus registry under /metrics until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = rt.Settings.Server.Listen
			}
			store, err := rt.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			log := rt.Logger().Module("api")
			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.Use(middleware.Recover())

			opts := []api.Option{api.WithLogger(log)}
			if rt.Registry != nil {
				opts = append(opts, api.WithGatherer(rt.Registry))
			}
			api.New(e, store, rt.Build, opts...)

			errCh := make(chan error, 1)
			go func() {
				log.Info("http server starting", logger.String("address", listen))
				if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			timeout := rt.Settings.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			log.Info("http server stopping")
			return e.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default: server.listen)")
	return cmd
}
