package main

import (
	"github.com/spf13/cobra"

	"pwanotify/internal/config"
)

var configFile string

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pwanotify",
		Short:         "PWA push notifications backend with WhatsApp OTP sign-up",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default "+config.DefaultPath+")")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCreateAdminCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configFile)
}
