package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"pwanotify/internal/app"
	"pwanotify/internal/logging"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the maintenance worker",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.LogWarn(a.Logger(), "close resources", err)
		}
	}()

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logging.LogError(a.Logger(), "server stopped", err)
		return err
	}
	return nil
}
