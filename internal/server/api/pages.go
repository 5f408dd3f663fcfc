package api

import (
	"html/template"
	"net/http"

	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/gin-gonic/gin"
)

// pages maps browser routes to their titles. The guard has already applied
// the access policy by the time a page handler runs; the shells only load
// data through the JSON API.
var pages = map[string]string{
	"/":                       "Timesheet",
	access.LoginPath:          "Sign in",
	access.UserDashboardPath:  "Dashboard",
	"/timesheet":              "Log time",
	"/timesheet-info":         "My entries",
	access.AdminDashboardPath: "Admin dashboard",
	"/admin/users":            "Users",
	"/admin/employees":        "Employees",
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body data-path="{{.Path}}"{{with .Role}} data-role="{{.}}"{{end}}>
<main id="app"><h1>{{.Title}}</h1></main>
</body>
</html>
`))

func (s *Server) page(title string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := gin.H{"Title": title, "Path": c.Request.URL.Path}
		if p := currentPrincipal(c); p != nil {
			data["Role"] = p.User.Role
		}
		c.HTML(http.StatusOK, "page", data)
	}
}

func (s *Server) notFound(c *gin.Context) {
	if access.IsAPI(c.Request.URL.Path) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}
	c.String(http.StatusNotFound, "404 page not found")
}
