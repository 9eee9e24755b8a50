// Package access decides which navigation routes a session may open.
package access

import (
	"strings"

	"studyforge/internal/features"
	"studyforge/internal/models"
)

// Level is how much a session is trusted
type Level int

const (
	Anonymous Level = iota
	AuthenticatedUnverified
	AuthenticatedVerified
	Admin
)

func (l Level) String() string {
	switch l {
	case AuthenticatedUnverified:
		return "authenticated_unverified"
	case AuthenticatedVerified:
		return "authenticated_verified"
	case Admin:
		return "admin"
	default:
		return "anonymous"
	}
}

// Classify derives the access level of a session. Admin comes from the role
// claim and still requires a verified email.
func Classify(s *models.Session) Level {
	switch {
	case !s.Authenticated():
		return Anonymous
	case !s.EmailVerified:
		return AuthenticatedUnverified
	case s.IsAdmin:
		return Admin
	default:
		return AuthenticatedVerified
	}
}

// Kind is the guard a route sits behind
type Kind string

const (
	KindPublic   Kind = "public"
	KindMember   Kind = "member"
	KindAdmin    Kind = "admin"
	KindNotFound Kind = "not_found"
)

// Well-known paths
const (
	PathHome           = "/"
	PathLogin          = "/login"
	PathSignup         = "/signup"
	PathForgotPassword = "/forgot-password"
	PathAdmin          = "/admin"
)

// UnverifiedMessage is shown when an unverified account opens a member route
const UnverifiedMessage = "Please verify your email to access this page."

// Route is one entry of the navigation surface
type Route struct {
	Path      string `json:"path"`
	Kind      Kind   `json:"kind"`
	FeatureID string `json:"featureId,omitempty"`
}

// Decision is the outcome of admitting a level to a route
type Decision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirectTo,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Admit decides whether level may open route
func Admit(level Level, route Route) Decision {
	switch route.Kind {
	case KindMember:
		switch level {
		case Anonymous:
			return Decision{RedirectTo: PathLogin}
		case AuthenticatedUnverified:
			return Decision{RedirectTo: PathLogin, Message: UnverifiedMessage}
		}
	case KindAdmin:
		switch level {
		case Anonymous:
			return Decision{RedirectTo: PathLogin}
		case AuthenticatedUnverified, AuthenticatedVerified:
			return Decision{RedirectTo: PathHome}
		}
	}
	return Decision{Allowed: true}
}

// Table is the route table: the public pages, one member route per
// feature, the admin panel and a not-found fallback
type Table struct {
	routes []Route
	byPath map[string]Route
}

// NewTable builds the route table for a feature catalog
func NewTable(registry *features.Registry) *Table {
	t := &Table{byPath: make(map[string]Route)}
	for _, p := range []string{PathHome, PathLogin, PathSignup, PathForgotPassword} {
		t.add(Route{Path: p, Kind: KindPublic})
	}
	for _, d := range registry.All() {
		t.add(Route{Path: "/" + d.ID, Kind: KindMember, FeatureID: d.ID})
	}
	t.add(Route{Path: PathAdmin, Kind: KindAdmin})
	return t
}

func (t *Table) add(r Route) {
	t.routes = append(t.routes, r)
	t.byPath[r.Path] = r
}

// Routes returns every known route in table order
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Resolve maps a client path to its route. Query strings and a trailing
// slash are ignored; a leading "#" from a hash URL is accepted.
func (t *Table) Resolve(path string) Route {
	path = normalize(path)
	if r, ok := t.byPath[path]; ok {
		return r
	}
	return Route{Path: path, Kind: KindNotFound}
}

// Decide resolves path and admits the session to it
func (t *Table) Decide(s *models.Session, path string) (Route, Decision) {
	route := t.Resolve(path)
	return route, Admit(Classify(s), route)
}

func normalize(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "#")
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return strings.ToLower(path)
}
