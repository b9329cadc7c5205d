package main

import (
	"fmt"
	"io"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/fw-platform/wish-console/internal/config"
	"github.com/fw-platform/wish-console/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stdin).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer, in io.Reader) *cobra.Command {
	var a *app

	rootCmd := &cobra.Command{
		Use:   "wish-console",
		Short: "Sign in to the wish console backend and manage the session",
		Long: `wish-console keeps a console session with the backend: it signs in with a
password or a one-time code, refreshes the session before it expires, and
lets admins view the console as another user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoSession] != "" {
				return nil
			}
			_ = godotenv.Load()
			cfg := config.New()
			logging.Setup(cfg.GetEnv(), cfg.GetLogLevel(), cmd.ErrOrStderr())

			var err error
			a, err = newApp(cmd.Context(), cfg, out, in)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetIn(in)

	current := func() *app { return a }
	rootCmd.AddCommand(
		loginCmd(current),
		otpCmd(current),
		logoutCmd(current),
		statusCmd(current),
		whoamiCmd(current),
		impersonateCmd(current),
		switchBackCmd(current),
		passwordCmd(current),
		keepaliveCmd(current),
		routeCmd(current),
		versionCmd(),
	)
	return rootCmd
}

// annotationNoSession marks commands that run without the session stack
const annotationNoSession = "no-session"

func printBanner(out io.Writer, appName string) {
	fmt.Fprintln(out, figure.NewFigure(appName, "cybermedium", true).String())
}

// success prints a success message.
func success(out io.Writer, format string, args ...any) {
	fmt.Fprintf(out, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(out io.Writer, format string, args ...any) {
	fmt.Fprintf(out, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(out io.Writer, format string, args ...any) {
	fmt.Fprintf(out, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
