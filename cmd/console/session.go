package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fw-platform/wish-console/auth"
	"github.com/fw-platform/wish-console/guards"
	"github.com/fw-platform/wish-console/session"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func statusCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			a := current()
			st := a.manager.Status()
			info(a.out, "State:    %s", st.State)
			if !st.Authenticated {
				return
			}
			info(a.out, "Role:     %s", st.Role)
			info(a.out, "Admin:    %t", st.IsAdmin)
			info(a.out, "Scope:    %s", a.manager.Scope())
			if st.Impersonating != nil {
				info(a.out, "Viewing:  %s <%s> (id %d)", st.Impersonating.Name, st.Impersonating.Email, st.Impersonating.ID)
			}
			if exp, ok := a.manager.ExpiresAt(); ok {
				info(a.out, "Expires:  %s", exp.Format(time.RFC3339))
			}
		},
	}
}

func whoamiCmd(current func() *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Long: `Show the signed-in user. With --offline the stored access token is decoded
locally without contacting the backend; the result is informational only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			if offline {
				ti, err := session.Inspect(a.manager.AccessToken())
				if err != nil {
					return err
				}
				info(a.out, "Subject:  %s", ti.Subject)
				info(a.out, "Email:    %s", ti.Email)
				info(a.out, "Role:     %s", ti.Role)
				if !ti.ExpiresAt.IsZero() {
					info(a.out, "Expires:  %s (expired: %t)", ti.ExpiresAt.Format(time.RFC3339), ti.Expired(time.Now()))
				}
				return nil
			}

			u, err := a.manager.Profile(cmd.Context())
			if err != nil {
				return err
			}
			info(a.out, "ID:       %d", u.ID)
			info(a.out, "Name:     %s", u.Name)
			info(a.out, "Email:    %s", u.Email)
			info(a.out, "Role:     %s", u.Role)
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Decode the stored token instead of asking the backend")

	return cmd
}

func keepaliveCmd(current func() *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Keep the session fresh until interrupted",
		Long: `Refresh the session now, then keep refreshing it shortly before it expires
until interrupted or until the backend ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			if !a.manager.Authenticated() {
				return errors.New("not signed in")
			}

			ended := make(chan struct{})
			var once sync.Once
			unsubscribe := a.manager.Subscribe(func(st auth.Status) {
				if !st.Authenticated {
					once.Do(func() { close(ended) })
				}
			})
			defer unsubscribe()

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
				go func() { _ = srv.ListenAndServe() }()
				defer srv.Shutdown(context.Background())
				info(a.out, "Metrics on %s", metricsAddr)
			}

			// A restored session carries no expiry; refreshing arms the timers
			if _, err := a.manager.Refresh(cmd.Context()); err != nil {
				return err
			}
			if exp, ok := a.manager.ExpiresAt(); ok {
				success(a.out, "Session refreshed, next expiry %s", exp.Format(time.RFC3339))
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(stop)

			select {
			case <-stop:
				info(a.out, "Stopped")
			case <-ended:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")

	return cmd
}

func routeCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "route <path>",
		Short: "Show where the console would send this session for a route",
		Example: `  wish-console route /users
  wish-console route "/password-reset?token=abc&email=a@b.co"`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a := current()
			d := guards.Resolve(args[0], a.manager.Status())
			if d.Allow {
				success(a.out, "%s is allowed", args[0])
				return
			}
			info(a.out, "%s redirects to %s", args[0], d.Redirect)
		},
	}
}
