package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/bareuptime/convcore/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthMiddleware validates the bearer token on every request and stores
// the resulting claims in the gin context. The data model in §3 carries
// no agent/role table, so the only authorization distinction downstream
// handlers make is claims.IsAdmin.
func AuthMiddleware(jwtAuth *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := jwtAuth.ValidateToken(authHeader[len(bearerPrefix):])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		if claims.TokenType != "access" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token type"})
			c.Abort()
			return
		}
		if claims.TenantID == "" || claims.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id or user_id missing from token"})
			c.Abort()
			return
		}

		c.Set("tenant_id", claims.TenantID)
		c.Set("project_id", claims.ProjectID)
		c.Set("user_id", claims.UserID)
		c.Set("is_admin", claims.IsAdmin)
		c.Set("claims", claims)

		c.Next()
	}
}

// WebhookHMACMiddleware verifies the X-Webhook-Signature header against
// an HMAC-SHA256 of the raw request body, for the alternate inbound
// email ingress (§6's "HMAC-signed" auth column). No ecosystem
// webhook-verification library appeared in the reference pack, so this
// stays on crypto/hmac.
func WebhookHMACMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sig := c.GetHeader("X-Webhook-Signature")
		if sig == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing signature"})
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(strings.NewReader(string(body)))

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(sig)) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "signature mismatch"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORSMiddleware handles CORS headers
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ErrorHandlerMiddleware handles panics and errors
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return gin.Recovery()
}

// RequestIDMiddleware adds a request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// Helper functions to extract values from context

func GetTenantID(c *gin.Context) string {
	return c.GetString("tenant_id")
}

func GetProjectID(c *gin.Context) string {
	return c.GetString("project_id")
}

func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get("is_admin")
	admin, _ := v.(bool)
	return admin
}

// GetClaims extracts JWT claims from context
func GetClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get("claims"); exists {
		if cl, ok := claims.(*auth.Claims); ok {
			return cl
		}
	}
	return nil
}

// RequireAdmin rejects any request whose claims aren't IsAdmin, for the
// admin-only rows of §6's HTTP surface table.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
