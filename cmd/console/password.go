package main

import (
	"github.com/spf13/cobra"
)

func passwordCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Reset or change the account password",
	}

	var forgotEmail string
	forgot := &cobra.Command{
		Use:   "forgot",
		Short: "Email a password reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			email, err := a.readLine(forgotEmail, "Email")
			if err != nil {
				return err
			}
			if err := a.manager.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			success(a.out, "If the account exists, a reset link is on its way to %s", email)
			return nil
		},
	}
	forgot.Flags().StringVarP(&forgotEmail, "email", "e", "", "Account email")

	var resetEmail, token, newPassword string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password using the emailed reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			var err error
			if resetEmail, err = a.readLine(resetEmail, "Email"); err != nil {
				return err
			}
			if token, err = a.readLine(token, "Reset token"); err != nil {
				return err
			}
			if newPassword, err = a.readSecret(newPassword, "New password"); err != nil {
				return err
			}
			if err := a.manager.ConfirmPasswordReset(cmd.Context(), resetEmail, token, newPassword); err != nil {
				return err
			}
			success(a.out, "Password updated. Sign in with the new password.")
			return nil
		},
	}
	reset.Flags().StringVarP(&resetEmail, "email", "e", "", "Account email")
	reset.Flags().StringVarP(&token, "token", "t", "", "Reset token from the email")
	reset.Flags().StringVar(&newPassword, "new-password", "", "New password (prompted when omitted)")

	var currentPassword, changedPassword string
	change := &cobra.Command{
		Use:   "change",
		Short: "Change the signed-in user's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			var err error
			if currentPassword, err = a.readSecret(currentPassword, "Current password"); err != nil {
				return err
			}
			if changedPassword, err = a.readSecret(changedPassword, "New password"); err != nil {
				return err
			}
			if err := a.manager.ChangePassword(cmd.Context(), currentPassword, changedPassword); err != nil {
				return err
			}
			success(a.out, "Password changed")
			return nil
		},
	}
	change.Flags().StringVar(&currentPassword, "current", "", "Current password (prompted when omitted)")
	change.Flags().StringVar(&changedPassword, "new-password", "", "New password (prompted when omitted)")

	cmd.AddCommand(forgot, reset, change)
	return cmd
}
