package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"pwanotify/internal/app"
	"pwanotify/internal/models"
)

type createAdminOptions struct {
	username string
	email    string
	password string
}

// NewCreateAdminCmd bootstraps an admin account even when public admin
// sign-up is disabled.
func NewCreateAdminCmd() *cobra.Command {
	opts := &createAdminOptions{}
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreateAdmin(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.username, "username", "", "admin username")
	cmd.Flags().StringVar(&opts.email, "email", "", "admin email")
	cmd.Flags().StringVar(&opts.password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runCreateAdmin(cmd *cobra.Command, opts *createAdminOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.Users.CreateAdmin(cmd.Context(), models.AdminRegistration{
		Username: opts.username,
		Email:    opts.email,
		Secret:   opts.password,
	})
	if err != nil {
		return oops.Code("CREATE_ADMIN_FAILED").With("username", opts.username).Wrap(err)
	}
	cmd.Printf("Admin %s created (id %s)\n", opts.username, user.ID)
	return nil
}
