// Package guard decides where a navigation may go given whether a session exists.
package guard

// Routes.
const (
	RouteRoot      = "/"
	RouteLogin     = "/login"
	RouteRegister  = "/register"
	RouteDashboard = "/dashboard"
)

// PublicRoutes are reachable without a session.
var PublicRoutes = []string{RouteLogin, RouteRegister}

// redirects are static route aliases applied before the guard runs.
var redirects = map[string]string{
	RouteRoot: RouteDashboard,
}

// Decision is the outcome of a guard check. Redirect is set when Allow is false.
type Decision struct {
	Allow    bool
	Redirect string
}

// IsPublic reports whether path is one of PublicRoutes.
func IsPublic(path string) bool {
	for _, p := range PublicRoutes {
		if p == path {
			return true
		}
	}
	return false
}

// Check evaluates the guard for a navigation to path.
func Check(path string, hasSession bool) Decision {
	public := IsPublic(path)
	if !public && !hasSession {
		return Decision{Redirect: RouteLogin}
	}
	if hasSession && public {
		return Decision{Redirect: RouteDashboard}
	}
	return Decision{Allow: true}
}

// Resolve applies static route redirects to path.
func Resolve(path string) string {
	if to, ok := redirects[path]; ok {
		return to
	}
	return path
}

// Navigate resolves path and follows guard redirects until a route is allowed.
// It returns the final path.
func Navigate(path string, hasSession bool) string {
	current := Resolve(path)
	// Every redirect target is allowed under the same session state, so this settles in two hops.
	for range 4 {
		d := Check(current, hasSession)
		if d.Allow {
			return current
		}
		current = Resolve(d.Redirect)
	}
	return current
}
