package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	sessionCookie = common.SessionCookieName
	refreshCookie = common.RefreshCookieName
	refreshPath   = "/api/auth/refresh"
)

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if p, ok := access.PrincipalFrom(c.Request.Context()); ok {
			args = append(args, "user_id", p.UserID())
		}
		s.logger.Debug(c.Request.Context(), "request", args...)
	}
}

// resolveSession turns the request's tokens into a principal stored in the
// request context. The user record is re-read on every request so role and
// status changes apply immediately.
func (s *Server) resolveSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p := s.principal(c); p != nil {
			c.Request = c.Request.WithContext(access.WithPrincipal(c.Request.Context(), p))
		}
		c.Next()
	}
}

func (s *Server) principal(c *gin.Context) *access.Principal {
	ctx := c.Request.Context()

	token, fromHeader := bearerToken(c)
	if token == "" {
		token, _ = c.Cookie(sessionCookie)
	}

	var identityID, email string
	if token != "" {
		claims, err := s.deps.Identity.Session(ctx, token)
		switch {
		case err == nil:
			identityID, email = claims.IdentityID, claims.Email
		case errors.Is(err, common.ErrTokenExpired) && !fromHeader:
		default:
			return nil
		}
	}

	if identityID == "" {
		// header clients refresh explicitly
		if fromHeader || c.Request.URL.Path == refreshPath {
			return nil
		}
		rt, _ := c.Cookie(refreshCookie)
		if rt == "" {
			return nil
		}
		session, err := s.deps.Identity.Refresh(ctx, rt)
		if err != nil {
			s.logger.Debug(ctx, "session refresh failed", "error", err)
			s.clearCookies(c)
			return nil
		}
		s.setCookies(c, session)
		identityID, email = session.IdentityID, session.Email
	}

	user, err := s.deps.Users.ByID(ctx, identityID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "user lookup failed", "identity_id", identityID, "error", err)
		}
		return nil
	}
	if !user.IsActive() {
		s.signOutInactive(c, user)
		return nil
	}
	return &access.Principal{IdentityID: identityID, Email: email, User: user}
}

func (s *Server) signOutInactive(c *gin.Context, user *models.User) {
	ctx := c.Request.Context()
	if err := s.deps.Identity.SignOut(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "sign-out of inactive user failed", "user_id", user.ID, "error", err)
	}
	s.clearCookies(c)
	s.logger.Info(ctx, "inactive user signed out", "user_id", user.ID, "status", user.Status)
}

// guard applies access.Decide to every route, pages and API alike.
func (s *Server) guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		var user *models.User
		if p, ok := access.PrincipalFrom(c.Request.Context()); ok {
			user = p.User
		}

		d := access.Decide(c.Request.URL.Path, user)
		switch {
		case d.Allow:
			c.Next()
		case d.Redirect != "":
			c.Redirect(http.StatusFound, d.Redirect)
			c.Abort()
		default:
			c.AbortWithStatusJSON(d.Status, gin.H{"success": false, "error": http.StatusText(d.Status)})
		}
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", true
	}
	return strings.TrimSpace(token), true
}

func (s *Server) setCookies(c *gin.Context, session *services.Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, session.AccessToken, int(s.opts.AccessTTL.Seconds()), "/", "", s.opts.CookieSecure, true)
	c.SetCookie(refreshCookie, session.RefreshToken, int(s.opts.RefreshTTL.Seconds()), "/", "", s.opts.CookieSecure, true)
}

func (s *Server) clearCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", s.opts.CookieSecure, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", s.opts.CookieSecure, true)
}

func currentPrincipal(c *gin.Context) *access.Principal {
	p, _ := access.PrincipalFrom(c.Request.Context())
	return p
}
