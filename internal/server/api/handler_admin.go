package api

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxIntentLimit   = 500
)

type statusRequest struct {
	Status models.Status `json:"status" binding:"required"`
}

type roleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// exportRequest selects entries dated From through To, both inclusive.
type exportRequest struct {
	From   string `json:"from" binding:"required"`
	To     string `json:"to" binding:"required"`
	UserID string `json:"userId"`
}

// GET /api/admin/users?limit=&offset=
func (s *Server) listUsers(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	users, err := s.deps.Users.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"users": users})
}

// POST /api/admin/users
func (s *Server) createUser(c *gin.Context) {
	var in services.NewUser
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid user: "+err.Error())
		return
	}
	u, err := s.deps.Provisioning.CreateUser(c.Request.Context(), currentPrincipal(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"user": u})
}

// PATCH /api/admin/users/:id/status
func (s *Server) updateUserStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	u, err := s.deps.Provisioning.UpdateStatus(c.Request.Context(), currentPrincipal(c), c.Param("id"), req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"user": u})
}

// PATCH /api/admin/users/:id/role
func (s *Server) updateUserRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role is required")
		return
	}
	u, err := s.deps.Provisioning.UpdateRole(c.Request.Context(), currentPrincipal(c), c.Param("id"), req.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"user": u})
}

// POST /api/admin/employees
func (s *Server) provisionEmployee(c *gin.Context) {
	var in services.NewEmployee
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid employee: "+err.Error())
		return
	}
	out, err := s.deps.Provisioning.ProvisionEmployee(c.Request.Context(), currentPrincipal(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"user": out.User, "employee": out.Employee})
}

// GET /api/admin/dashboard
func (s *Server) adminDashboard(c *gin.Context) {
	d, err := s.deps.Dashboards.AdminDashboard(c.Request.Context(), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"dashboard": d})
}

// GET /api/admin/intents?state=failed&limit=
func (s *Server) listIntents(c *gin.Context) {
	state := models.IntentState(c.DefaultQuery("state", string(models.IntentFailed)))
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	intents, err := s.deps.Timesheets.Intents(c.Request.Context(), state, min(limit, maxIntentLimit))
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"intents": intents})
}

// POST /api/admin/intents/reconcile?olderThan=5m
func (s *Server) reconcile(c *gin.Context) {
	olderThan := s.opts.ReconcileStaleAfter
	if v := c.Query("olderThan"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			badRequest(c, "invalid olderThan")
			return
		}
		olderThan = d
	}
	report, err := s.deps.Timesheets.Reconcile(c.Request.Context(), olderThan)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"report": report})
}

// POST /api/admin/exports
func (s *Server) createExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "from and to are required")
		return
	}
	from, err := time.Parse(time.DateOnly, req.From)
	if err != nil {
		badRequest(c, "invalid from date")
		return
	}
	to, err := time.Parse(time.DateOnly, req.To)
	if err != nil {
		badRequest(c, "invalid to date")
		return
	}

	res, err := s.deps.Exports.Export(c.Request.Context(), currentPrincipal(c).UserID(), services.ExportRequest{
		From:   from,
		To:     to.AddDate(0, 0, 1),
		UserID: req.UserID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"export": res.Export, "url": res.URL})
}

// GET /api/admin/exports?limit=
func (s *Server) listExports(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	exports, err := s.deps.Exports.Recent(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"exports": exports})
}

// GET /api/admin/exports/:id
func (s *Server) getExport(c *gin.Context) {
	res, err := s.deps.Exports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"export": res.Export, "url": res.URL})
}

// GET /api/admin/workspace/check
func (s *Server) checkWorkspace(c *gin.Context) {
	checks := s.deps.Diagnostics.Check(c.Request.Context())
	healthy := true
	for _, ch := range checks {
		healthy = healthy && ch.OK
	}
	success(c, http.StatusOK, gin.H{"healthy": healthy, "databases": checks})
}
