// Package guards decides whether a console route may be shown for the
// current session state, and where to send the user when it may not.
package guards

import (
	"net/url"
	"strings"

	"github.com/fw-platform/wish-console/auth"
)

// Console routes
const (
	RouteLogin          = auth.RouteLogin
	RouteDashboard      = auth.RouteDashboard
	RouteResetPassword  = "/reset-password"
	RoutePasswordReset  = "/password-reset" // Target of emailed reset links
	RouteOTPLogin       = "/otp-login"
	RouteForgotPassword = "/forgot-password"
)

// Decision is the outcome of a guard. Redirect is set only when Allow is false.
type Decision struct {
	Allow    bool
	Redirect string
}

func allow() Decision {
	return Decision{Allow: true}
}

func redirect(to string) Decision {
	return Decision{Redirect: to}
}

// Guard inspects the session state and the route's query
type Guard func(status auth.Status, query url.Values) Decision

// Auth admits any signed-in session
func Auth(status auth.Status, _ url.Values) Decision {
	if status.Authenticated {
		return allow()
	}
	return redirect(RouteLogin)
}

// Guest admits only signed-out visitors
func Guest(status auth.Status, _ url.Values) Decision {
	if !status.Authenticated {
		return allow()
	}
	return redirect(RouteDashboard)
}

// Admin admits an ADMIN session that is not impersonating
func Admin(status auth.Status, _ url.Values) Decision {
	if status.IsAdmin {
		return allow()
	}
	return redirect(RouteDashboard)
}

// ResetLink turns an emailed reset link into the reset form. Links missing
// the token or email send the user home.
func ResetLink(status auth.Status, query url.Values) Decision {
	token := strings.TrimSpace(query.Get("token"))
	email := strings.TrimSpace(query.Get("email"))

	if token != "" && email != "" {
		q := url.Values{}
		q.Set("token", token)
		q.Set("email", email)
		return redirect(RouteResetPassword + "?" + q.Encode())
	}
	if status.Authenticated {
		return redirect(RouteDashboard)
	}
	return redirect(RouteLogin)
}

type route struct {
	prefix bool
	guards []Guard
}

// routes mirrors the console's route table. Routes not listed fall back to
// the dashboard.
var routes = map[string]route{
	"":                  {guards: []Guard{ResetLink}},
	RouteLogin:          {guards: []Guard{Guest}},
	RouteOTPLogin:       {},
	RouteForgotPassword: {},
	RouteResetPassword:  {},
	RoutePasswordReset:  {guards: []Guard{ResetLink}},
	RouteDashboard:      {guards: []Guard{Auth}},
	"/account":          {guards: []Guard{Auth}},
	"/events":           {guards: []Guard{Auth}},
	"/events/new":       {guards: []Guard{Auth, Admin}},
	"/ai-wishes":        {guards: []Guard{Auth}},
	"/email-preview":    {guards: []Guard{Auth}},
	"/email-status":     {guards: []Guard{Auth}},
	"/schedulers":       {guards: []Guard{Auth, Admin}},
	"/users":            {prefix: true, guards: []Guard{Auth, Admin}},
}

// Resolve runs the guards of target (a path with optional query) in order
// and returns the first redirect, or allow.
func Resolve(target string, status auth.Status) Decision {
	u, err := url.Parse(target)
	if err != nil {
		return redirect(RouteDashboard)
	}
	path := strings.TrimSuffix(u.Path, "/")

	r, ok := lookup(path)
	if !ok {
		return redirect(RouteDashboard)
	}
	for _, g := range r.guards {
		if d := g(status, u.Query()); !d.Allow {
			return d
		}
	}
	return allow()
}

func lookup(path string) (route, bool) {
	if r, ok := routes[path]; ok {
		return r, true
	}
	for p, r := range routes {
		if r.prefix && strings.HasPrefix(path, p+"/") {
			return r, true
		}
	}
	return route{}, false
}
