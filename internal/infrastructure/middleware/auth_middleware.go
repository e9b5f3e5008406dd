package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/security"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/akshaykankal/facto/internal/shared/utils"
	"github.com/gin-gonic/gin"
)

// CronSecretHeader carries the shared secret of the sweep trigger.
const CronSecretHeader = "x-cron-secret"

type AuthMiddleware struct {
	jwtService *security.JWTService
}

func NewAuthMiddleware(jwtService *security.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// Authenticate requires a dashboard bearer token and exposes its user to
// handlers and to the request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			utils.Error(c, errors.New(errors.ErrCodeUnauthorized, "Invalid authorization header format"))
			c.Abort()
			return
		}
		tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
		if tokenString == "" {
			utils.Error(c, errors.New(errors.ErrCodeUnauthorized, "Missing token"))
			c.Abort()
			return
		}

		claims, err := m.jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			utils.Error(c, err)
			c.Abort()
			return
		}

		ctx := security.ContextWithUser(c.Request.Context(), claims.UserID, claims.Username)
		ctx = observability.WithUserID(ctx, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Set(string(security.UserIDKey), claims.UserID)
		c.Set(string(security.UsernameKey), claims.Username)

		c.Next()
	}
}

func GetCurrentUserID(c *gin.Context) (uint64, error) {
	userID, exists := c.Get(string(security.UserIDKey))
	if !exists {
		return 0, errors.ErrUnauthorized
	}

	id, ok := userID.(uint64)
	if !ok {
		return 0, errors.New(errors.ErrCodeInternal, "Invalid user ID type in context")
	}

	return id, nil
}

// CronSecret guards machine-triggered endpoints. The secret is compared in
// constant time; an empty configured secret rejects everything.
func CronSecret(secret string, audit *observability.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(CronSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			audit.LogSecurityEvent(c.Request.Context(), observability.SecurityEvent{
				Type:      observability.AuditSweepTriggered,
				Action:    c.Request.Method + " " + c.FullPath(),
				Success:   false,
				IPAddress: c.ClientIP(),
				Reason:    "invalid cron secret",
			})
			utils.Error(c, errors.New(errors.ErrCodeUnauthorized, "Unauthorized"))
			c.Abort()
			return
		}
		c.Next()
	}
}
