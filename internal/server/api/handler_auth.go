package api

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// GET /api/health
func (s *Server) health(c *gin.Context) {
	success(c, http.StatusOK, gin.H{"status": "ok"})
}

// POST /api/auth/login
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	ctx := c.Request.Context()

	session, err := s.deps.Identity.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}

	user, err := s.deps.Users.ByID(ctx, session.IdentityID)
	if err != nil {
		if err := s.deps.Identity.SignOut(ctx, session.IdentityID); err != nil {
			s.logger.Warn(ctx, "revoking session of unresolved user failed", "identity_id", session.IdentityID, "error", err)
		}
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "identity without user record", "identity_id", session.IdentityID)
			s.fail(c, common.ErrorUnauthorized)
			return
		}
		s.fail(c, err)
		return
	}
	if !user.IsActive() {
		s.signOutInactive(c, user)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "account is " + string(user.Status)})
		return
	}

	if err := s.deps.Users.RecordLogin(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "recording login failed", "user_id", user.ID, "error", err)
	}
	s.setCookies(c, session)
	s.logger.Info(ctx, "user signed in", "user_id", user.ID, "role", user.Role)

	success(c, http.StatusOK, gin.H{
		"user":         user,
		"accessToken":  session.AccessToken,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
		"redirect":     access.Home(user),
	})
}

// POST /api/auth/logout
func (s *Server) logout(c *gin.Context) {
	p := currentPrincipal(c)
	if err := s.deps.Identity.SignOut(c.Request.Context(), p.IdentityID); err != nil {
		s.fail(c, err)
		return
	}
	s.clearCookies(c)
	success(c, http.StatusOK, nil)
}

// POST /api/auth/refresh takes the refresh token from the body or the
// refresh cookie.
func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie(refreshCookie)
	}
	if req.RefreshToken == "" {
		s.fail(c, common.ErrorUnauthorized)
		return
	}

	session, err := s.deps.Identity.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.clearCookies(c)
		s.fail(c, err)
		return
	}
	s.setCookies(c, session)
	success(c, http.StatusOK, gin.H{
		"accessToken":  session.AccessToken,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
	})
}

// GET /api/auth/me
func (s *Server) me(c *gin.Context) {
	p := currentPrincipal(c)
	success(c, http.StatusOK, gin.H{"user": p.User, "email": p.Email})
}

// GET /api/auth/check-role
func (s *Server) checkRole(c *gin.Context) {
	success(c, http.StatusOK, gin.H{"role": currentPrincipal(c).User.Role})
}

// GET /api/users/count
func (s *Server) countUsers(c *gin.Context) {
	n, err := s.deps.Users.Count(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"count": n})
}

// GET /api/users/:email
func (s *Server) userByEmail(c *gin.Context) {
	u, err := s.deps.Users.ByEmail(c.Request.Context(), currentPrincipal(c), c.Param("email"))
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"user": u})
}
