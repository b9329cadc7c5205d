package main

import (
	"github.com/fw-platform/wish-console/apiclient"
	"github.com/spf13/cobra"
)

func loginCmd(current func() *app) *cobra.Command {
	var (
		email      string
		password   string
		rememberMe bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. With --remember-me the session is kept in
the data folder and survives restarts; otherwise it lives in the runtime
folder until the machine restarts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			var err error
			if email, err = a.readLine(email, "Email"); err != nil {
				return err
			}
			if password, err = a.readSecret(password, "Password"); err != nil {
				return err
			}

			err = a.manager.Login(cmd.Context(), apiclient.LoginRequest{Email: email, Password: password, RememberMe: rememberMe})
			if err != nil {
				return err
			}
			success(a.out, "Signed in as %s (%s)", email, a.manager.Role())
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when omitted)")
	cmd.Flags().BoolVarP(&rememberMe, "remember-me", "r", false, "Keep the session across restarts")

	return cmd
}

func otpCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otp",
		Short: "Sign in with a one-time code sent by email",
	}

	var sendEmail string
	send := &cobra.Command{
		Use:   "send",
		Short: "Email a one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			email, err := a.readLine(sendEmail, "Email")
			if err != nil {
				return err
			}
			if err := a.manager.SendOTP(cmd.Context(), email); err != nil {
				return err
			}
			success(a.out, "If the account exists, a code is on its way to %s", email)
			return nil
		},
	}
	send.Flags().StringVarP(&sendEmail, "email", "e", "", "Account email")

	var verifyEmail, code string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Sign in with the emailed code",
		Long:  `Sign in with the emailed code. Code sign-ins are never remembered across restarts.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			email, err := a.readLine(verifyEmail, "Email")
			if err != nil {
				return err
			}
			if code, err = a.readLine(code, "Code"); err != nil {
				return err
			}
			if err := a.manager.VerifyOTP(cmd.Context(), email, code); err != nil {
				return err
			}
			success(a.out, "Signed in as %s (%s)", email, a.manager.Role())
			return nil
		},
	}
	verify.Flags().StringVarP(&verifyEmail, "email", "e", "", "Account email")
	verify.Flags().StringVarP(&code, "code", "c", "", "One-time code")

	cmd.AddCommand(send, verify)
	return cmd
}

func logoutCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out, or stop viewing as another user when impersonating",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			a := current()
			impersonating := a.manager.Status().Impersonating != nil
			a.manager.Logout()
			if impersonating {
				success(a.out, "Stopped impersonating; still signed in as admin")
				return
			}
			success(a.out, "Signed out")
		},
	}
}
