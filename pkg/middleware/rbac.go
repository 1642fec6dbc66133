package middleware

import (
	"strings"

	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireRole returns a middleware that requires the user to have a specific role
func RequireRole(role jwt.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get claims from context (set by JWTAuthMiddleware)
		claims, exists := c.Get("claims")
		if !exists {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
			c.Abort()
			return
		}

		// Cast to JWTClaims
		jwtClaims, ok := claims.(*jwt.JWTClaims)
		if !ok {
			c.Error(errors.NewInternalServerError("INVALID_CLAIMS", "Invalid JWT claims format"))
			c.Abort()
			return
		}

		// Check if user has the required role
		if !jwtClaims.HasRole(role) {
			c.Error(errors.NewForbiddenError("INSUFFICIENT_ROLE", "Your role does not allow this operation"))
			c.Abort()
			return
		}

		// User has the required role, continue
		c.Next()
	}
}

// RequirePermission returns a middleware that requires the user to have a specific permission
func RequirePermission(permission jwt.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get claims from context (set by JWTAuthMiddleware)
		claims, exists := c.Get("claims")
		if !exists {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
			c.Abort()
			return
		}

		// Cast to JWTClaims
		jwtClaims, ok := claims.(*jwt.JWTClaims)
		if !ok {
			c.Error(errors.NewInternalServerError("INVALID_CLAIMS", "Invalid JWT claims format"))
			c.Abort()
			return
		}

		// Check if user has the required permission
		if !jwtClaims.HasPermission(permission) {
			c.Error(errors.NewForbiddenError("INSUFFICIENT_PERMISSION", "You don't have permission to perform this operation"))
			c.Abort()
			return
		}

		// User has the required permission, continue
		c.Next()
	}
}

// TokenFromRequest extracts a bearer token from the Authorization header or,
// for websocket handshakes, the token query parameter.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// JWTAuthMiddleware checks that the request has a valid JWT and adds claims to the context
func JWTAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			logger.FromGin(c, log).Warn("invalid jwt token", "error", err.Error(), "path", c.Request.URL.Path)
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		logger.Attach(c, logger.FromGin(c, log).WithIdentity(claims.UserID))

		c.Next()
	}
}

// CurrentUserID returns the authenticated identity set by JWTAuthMiddleware
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}
