package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	"github.com/smallbiznis/moviestore/internal/auditcontext"
	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	obscontext "github.com/smallbiznis/moviestore/internal/observability/context"
)

const contextPrincipalKey = "principal"

// AuthRequired resolves the bearer token into a principal or aborts with 401.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		setPrincipal(c, *principal)
		c.Next()
	}
}

// authorize gates a route on a casbin capability. It must run after AuthRequired.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func setPrincipal(c *gin.Context, principal authdomain.Principal) {
	actorType := string(auditdomain.ActorTypeUser)
	if principal.IsPrivileged() {
		actorType = string(auditdomain.ActorTypeAdmin)
	}

	ctx := c.Request.Context()
	ctx = auditcontext.WithActor(ctx, auditcontext.Actor{
		Type:     actorType,
		ID:       principal.UserID.String(),
		Username: principal.Username,
	})
	ctx = obscontext.WithActor(ctx, actorType, principal.UserID.String())
	c.Request = c.Request.WithContext(ctx)
	c.Set(contextPrincipalKey, principal)
}

func principalFromContext(c *gin.Context) (authdomain.Principal, bool) {
	if c == nil {
		return authdomain.Principal{}, false
	}
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return authdomain.Principal{}, false
	}
	principal, ok := value.(authdomain.Principal)
	return principal, ok && principal.UserID != 0
}

func mustPrincipal(c *gin.Context) (authdomain.Principal, bool) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
	}
	return principal, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
