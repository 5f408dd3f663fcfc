// Package api is the HTTP surface of the timesheet server: JSON endpoints
// under /api and minimal HTML shells for the browser pages. Every request
// passes through session resolution and the access policy before reaching a
// handler.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	address string
	deps    Deps
	opts    Options
	logger  logging.Logger
	engine  *gin.Engine
	now     func() time.Time
}

func NewServer(address string, l logging.Logger, deps Deps, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		address: address,
		deps:    deps,
		opts:    opts,
		logger:  l.With("module", "http_server"),
		now:     time.Now,
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(pageTemplate)
	r.Use(gin.Recovery(), s.requestLogger(), s.resolveSession(), s.guard())

	api := r.Group("/api")
	{
		api.GET("/health", s.health)

		auth := api.Group("/auth")
		auth.POST("/login", s.login)
		auth.POST("/logout", s.logout)
		auth.POST("/refresh", s.refresh)
		auth.GET("/me", s.me)
		auth.GET("/check-role", s.checkRole)

		api.GET("/users/count", s.countUsers)
		api.GET("/users/:email", s.userByEmail)

		api.GET("/timesheet-info", s.timesheetInfo)
		api.POST("/timesheet", s.submitTimesheet)
		api.GET("/timesheet/form", s.submissionForm)
		api.GET("/dashboard", s.userDashboard)

		ws := api.Group("/workspace")
		ws.GET("/employees", s.employees)
		ws.GET("/projects", s.projects)
		ws.GET("/tasks", s.tasks)
		ws.GET("/timesheet", s.workspaceEntries)

		// the guard rejects non-admins before these run
		admin := api.Group("/admin")
		admin.GET("/users", s.listUsers)
		admin.POST("/users", s.createUser)
		admin.PATCH("/users/:id/status", s.updateUserStatus)
		admin.PATCH("/users/:id/role", s.updateUserRole)
		admin.POST("/employees", s.provisionEmployee)
		admin.GET("/dashboard", s.adminDashboard)
		admin.GET("/intents", s.listIntents)
		admin.POST("/intents/reconcile", s.reconcile)
		admin.POST("/exports", s.createExport)
		admin.GET("/exports", s.listExports)
		admin.GET("/exports/:id", s.getExport)
		admin.GET("/workspace/check", s.checkWorkspace)
	}

	for path, title := range pages {
		r.GET(path, s.page(title))
	}
	r.NoRoute(s.notFound)
	return r
}
