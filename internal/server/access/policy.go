package access

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

const (
	LoginPath          = "/login"
	UserDashboardPath  = "/dashboard"
	AdminDashboardPath = "/admin/dashboard"
)

// publicAPI lists API routes reachable without a session.
var publicAPI = map[string]bool{
	"/api/auth/login":   true,
	"/api/auth/refresh": true,
	"/api/health":       true,
}

// adminAPI lists admin-only API routes outside /api/admin.
var adminAPI = map[string]bool{
	"/api/users/count": true,
}

// Decision is the outcome of Decide. Exactly one of Allow, Redirect or
// Status is meaningful.
type Decision struct {
	Allow    bool
	Redirect string
	Status   int
}

func allow() Decision                 { return Decision{Allow: true} }
func redirect(to string) Decision     { return Decision{Redirect: to} }
func reject(status int) Decision      { return Decision{Status: status} }
func hasPrefix(path, pre string) bool { return path == pre || strings.HasPrefix(path, pre+"/") }

// IsAPI reports whether path is a JSON API route.
func IsAPI(path string) bool {
	return hasPrefix(path, "/api")
}

// Home is the dashboard a user lands on after signing in.
func Home(user *models.User) string {
	if user.IsAdmin() {
		return AdminDashboardPath
	}
	return UserDashboardPath
}

// Decide applies the route policy. user is nil for an unauthenticated
// request; callers must pass nil for users that are not active.
func Decide(path string, user *models.User) Decision {
	if IsAPI(path) {
		return decideAPI(path, user)
	}

	switch {
	case path == "/":
		return redirect(LoginPath)
	case path == LoginPath:
		if user != nil {
			return redirect(Home(user))
		}
		return allow()
	case user == nil:
		return redirect(LoginPath)
	case hasPrefix(path, "/admin") && !user.IsAdmin():
		return redirect(UserDashboardPath)
	case path == UserDashboardPath && user.IsAdmin():
		return redirect(AdminDashboardPath)
	}
	return allow()
}

func decideAPI(path string, user *models.User) Decision {
	switch {
	case publicAPI[path]:
		return allow()
	case user == nil:
		return reject(http.StatusUnauthorized)
	case (hasPrefix(path, "/api/admin") || adminAPI[path]) && !user.IsAdmin():
		return reject(http.StatusForbidden)
	}
	return allow()
}
