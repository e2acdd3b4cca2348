package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default from config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	a := newApp()
	defer a.close()
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	if a.cfg.Logging.Mode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	if _, err := a.packs.Discover(cmd.Context(), false); err != nil {
		a.log.Warn("initial pack discovery failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Runtime: a.rt,
		Packs:   a.packs,
		Engine:  a.engine,
		Model:   a.cfg.Engine.Model,
		Log:     a.log,
	})
	if err := srv.Run(ctx, addr); err != nil {
		exitErr("serve", err)
	}
}
