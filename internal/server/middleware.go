package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/launchpad/internal/identity"
	obscontext "github.com/smallbiznis/launchpad/internal/observability/context"
)

const (
	HeaderUserID      = "X-User-ID"
	HeaderUserRole    = "X-User-Role"
	HeaderCartSession = "X-Cart-Session"
)

// IdentityHeaders attaches the caller asserted by the upstream session layer.
// Requests without the headers continue anonymously; a malformed role is rejected.
func IdentityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := obscontext.WithClientInfo(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.Next()
			return
		}
		role, ok := identity.ParseRole(c.GetHeader(HeaderUserRole))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx = identity.WithIdentity(ctx, identity.Identity{UserID: userID, Role: role})
		ctx = obscontext.WithActor(ctx, string(role), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize checks the caller's role against the casbin policy for object/action.
// Record ownership is enforced by the services.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := identity.Require(c.Request.Context())
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), string(caller.Role), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func parseIDParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
