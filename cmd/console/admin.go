package main

import (
	"strconv"

	"github.com/fw-platform/wish-console/users"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func impersonateCmd(current func() *app) *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "impersonate <user-id>",
		Short: "View the console as another user (admins only)",
		Long: `View the console as another user. The admin session stays in place; run
switch-back or logout to return to the admin view.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return errors.Errorf("invalid user id %q", args[0])
			}

			a := current()
			target := users.AppUser{ID: id, Name: name, Email: email, Role: users.RoleUser}
			if err := a.manager.StartImpersonation(cmd.Context(), target); err != nil {
				return err
			}
			success(a.out, "Now viewing the console as user %d", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name of the user")
	cmd.Flags().StringVar(&email, "email", "", "Email of the user")

	return cmd
}

func switchBackCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "switch-back",
		Short: "Return from impersonation to the admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Success and failure are reported through the notifier
			return current().manager.ReturnToAdmin(cmd.Context())
		},
	}
}
