package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Roles carried in the role claim
const (
	RoleOwner   = "Owner"
	RoleManager = "Manager"
	RoleStaff   = "Staff"
)

const (
	ctxUserID   = "user_id"
	ctxTenantID = "tenant_id"
	ctxRole     = "role"
	ctxToken    = "token"
	ctxExpiry   = "token_expiry"
)

// revokeWithoutExpiry bounds how long a token without exp stays blacklisted
const revokeWithoutExpiry = 24 * time.Hour

// Claims identifies the caller and the tenant every request is scoped to
type Claims struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// authMiddleware rejects requests without a valid, unrevoked bearer token
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			abortUnauthorized(c, "Authorization header must be 'Bearer <token>'")
			return
		}
		tokenStr := parts[1]

		claims, err := h.parseToken(tokenStr)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		if h.redis != nil {
			revoked, err := h.redis.IsBlacklisted(c.Request.Context(), tokenStr)
			if err != nil {
				h.logger.Warn("Token blacklist lookup failed", zap.Error(err))
			}
			if revoked {
				abortUnauthorized(c, "Token has been revoked")
				return
			}
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxTenantID, claims.TenantID)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxToken, tokenStr)
		if claims.ExpiresAt != nil {
			c.Set(ctxExpiry, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

func (h *Handler) parseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("token is missing user or tenant")
	}
	return claims, nil
}

// RequireRole only lets callers with one of the given roles through
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "FORBIDDEN",
			"message": "Insufficient permissions",
		})
	}
}

// logout revokes the presented token until it expires
func (h *Handler) logout(c *gin.Context) {
	if h.redis != nil {
		ttl := revokeWithoutExpiry
		if expiry := c.GetTime(ctxExpiry); !expiry.IsZero() {
			ttl = time.Until(expiry)
		}
		if err := h.redis.BlacklistToken(c.Request.Context(), c.GetString(ctxToken), ttl); err != nil {
			h.logger.Error("Failed to blacklist token", zap.Error(err))
			respondError(c, err)
			return
		}
	}
	respondMessage(c, http.StatusOK, "Logged out successfully")
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "UNAUTHORIZED",
		"message": message,
	})
}

func tenantID(c *gin.Context) string {
	return c.GetString(ctxTenantID)
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
