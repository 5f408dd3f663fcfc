package api

import (
	"net/http"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/gin-gonic/gin"
)

// GET /api/timesheet-info
func (s *Server) timesheetInfo(c *gin.Context) {
	entries, err := s.deps.Timesheets.UserEntries(c.Request.Context(), currentPrincipal(c).UserID())
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"entries": entries})
}

// POST /api/timesheet
func (s *Server) submitTimesheet(c *gin.Context) {
	var sub models.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, "invalid submission: "+err.Error())
		return
	}

	entry, err := s.deps.Timesheets.SubmitEntry(c.Request.Context(), currentPrincipal(c), sub)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"entry": entry})
}

// GET /api/timesheet/form
func (s *Server) submissionForm(c *gin.Context) {
	form, err := s.deps.References.SubmissionForm(c.Request.Context(), currentPrincipal(c).User.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"form": form})
}

// GET /api/dashboard
func (s *Server) userDashboard(c *gin.Context) {
	d, err := s.deps.Dashboards.UserDashboard(c.Request.Context(), currentPrincipal(c).UserID(), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"dashboard": d})
}

// GET /api/workspace/employees
func (s *Server) employees(c *gin.Context) {
	employees, err := s.deps.References.Employees(c.Request.Context(), c.Query("email"))
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"employees": employees})
}

// GET /api/workspace/projects
func (s *Server) projects(c *gin.Context) {
	projects, err := s.deps.References.Projects(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"projects": projects})
}

// GET /api/workspace/tasks?projectId=...
func (s *Server) tasks(c *gin.Context) {
	ids := c.QueryArray("projectId")
	if len(ids) == 0 {
		badRequest(c, "projectId is required")
		return
	}
	tasks, err := s.deps.References.Tasks(c.Request.Context(), ids...)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"tasks": tasks})
}

// GET /api/workspace/timesheet
func (s *Server) workspaceEntries(c *gin.Context) {
	entries, err := s.deps.Timesheets.ListEntries(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"entries": entries})
}
