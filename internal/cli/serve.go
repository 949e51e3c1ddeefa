package cli

import (
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lawcascade/internal/httpapi"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				if addr == "" {
					addr = a.cfg.HTTPAddr
				}
				if a.cfg.LogLevel != "debug" {
					gin.SetMode(gin.ReleaseMode)
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return httpapi.Run(ctx, addr, httpapi.NewRouter(a.coord, a.logger), a.logger)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: http_addr)")
	return cmd
}
