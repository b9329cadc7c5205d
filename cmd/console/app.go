package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/fw-platform/wish-console/apiclient"
	"github.com/fw-platform/wish-console/auth"
	"github.com/fw-platform/wish-console/impersonation"
	"github.com/fw-platform/wish-console/internal/config"
	"github.com/fw-platform/wish-console/notify"
	"github.com/fw-platform/wish-console/sessionclock"
	"github.com/fw-platform/wish-console/storage"
	"github.com/fw-platform/wish-console/storage/filestore"
	"github.com/fw-platform/wish-console/storage/redisstore"
	"github.com/fw-platform/wish-console/tokenstore"
	"github.com/fw-platform/wish-console/transport"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const sessionFile = "session.json"

// app is the session stack shared by the commands
type app struct {
	cfg      config.Config
	out      io.Writer
	in       *bufio.Reader
	tty      int // Terminal descriptor of stdin, -1 when stdin is not a terminal
	api      *apiclient.Client
	manager  *auth.Manager
	toasts   *notify.Toasts
	loading  *notify.Loading
	registry *prometheus.Registry
	redis    *redis.Client
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer, in io.Reader) (*app, error) {
	a := &app{
		cfg:      cfg,
		out:      out,
		in:       bufio.NewReader(in),
		tty:      terminalFd(in),
		toasts:   notify.NewToasts(nil),
		loading:  &notify.Loading{},
		registry: prometheus.NewRegistry(),
	}
	a.toasts.Subscribe(a.printToast)

	durable, err := a.durableStorage(ctx)
	if err != nil {
		return nil, err
	}
	ephemeral := filestore.New(filepath.Join(cfg.GetRuntimeFolder(), sessionFile), filestore.WithPassphrase(cfg.GetStoragePassphrase()))

	a.api = apiclient.New(cfg.GetAPIURL(), apiclient.WithTimeout(cfg.GetRequestTimeout()))
	a.manager, err = auth.NewManager(
		a.api,
		tokenstore.New(durable, ephemeral),
		impersonation.New(ephemeral, impersonation.WithLogger(log.With().Str("component", "impersonation").Logger())),
		sessionclock.New(sessionclock.RealScheduler{}),
		auth.WithNavigator(a),
		auth.WithNotifier(a.toasts),
		auth.WithMetrics(a.registry),
		auth.WithRefreshTimeout(cfg.GetRefreshTimeout()),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[newApp]")
	}
	a.api.Authenticate(transport.New(a.manager, transport.WithBase(a.api.Base()), transport.WithLoading(a.loading)))
	return a, nil
}

// durableStorage is redis when REDIS_URL is set, otherwise a file in the data folder
func (a *app) durableStorage(ctx context.Context) (storage.Storage, error) {
	if addr := a.cfg.GetRedisURL(); addr != "" {
		client, err := redisstore.Connect(ctx, addr, a.cfg.GetRedisPassword())
		if err != nil {
			return nil, errors.Wrap(err, "[newApp] durable storage")
		}
		a.redis = client
		return redisstore.New(client, "wish-console:"+username()+":durable"), nil
	}
	return filestore.New(filepath.Join(a.cfg.GetDataFolder(), sessionFile), filestore.WithPassphrase(a.cfg.GetStoragePassphrase())), nil
}

func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// Navigate reports route changes the manager asks for
func (a *app) Navigate(route string) {
	if route == auth.RouteLogin {
		warn(a.out, "Signed out. Run `wish-console login` to sign in again.")
		return
	}
	info(a.out, "-> %s", route)
}

func (a *app) printToast(t notify.Toast) {
	switch t.Level {
	case notify.LevelSuccess:
		success(a.out, "%s", t.Text)
	case notify.LevelError, notify.LevelWarning:
		warn(a.out, "%s", t.Text)
	default:
		info(a.out, "%s", t.Text)
	}
}

// readLine returns value when set, otherwise prompts for it
func (a *app) readLine(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.out, "%s: ", prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrapf(err, "read %s", strings.ToLower(prompt))
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readSecret is readLine without echo when stdin is a terminal
func (a *app) readSecret(value, prompt string) (string, error) {
	if value != "" || a.tty < 0 {
		return a.readLine(value, prompt)
	}
	fmt.Fprintf(a.out, "%s: ", prompt)
	secret, err := term.ReadPassword(a.tty)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", strings.ToLower(prompt))
	}
	return string(secret), nil
}

func terminalFd(in io.Reader) int {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return -1
	}
	return int(f.Fd())
}

func username() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}
