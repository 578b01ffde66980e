package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"ecosystem/analytics/utils"
)

const (
	HeaderAPIKey = "X-API-KEY"
	serviceKey   = "service"
)

// AuthConfig holds the credentials upstream services may present. A zero
// value disables authentication.
type AuthConfig struct {
	JWTSecret  []byte
	APIKeyHash string
}

func (a AuthConfig) Enabled() bool {
	return len(a.JWTSecret) > 0 || a.APIKeyHash != ""
}

// ServiceAuth accepts either an X-API-KEY matching the bcrypt hash or a
// bearer service token. It lets every request through when no credentials
// are configured.
func ServiceAuth(cfg AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		logger := LoggerFrom(c)

		if key := c.GetHeader(HeaderAPIKey); key != "" && cfg.APIKeyHash != "" {
			if err := bcrypt.CompareHashAndPassword([]byte(cfg.APIKeyHash), []byte(key)); err == nil {
				c.Set(serviceKey, "api-key")
				c.Next()
				return
			}
			logger.Warn("ServiceAuth: api key rejected")
		}

		if len(cfg.JWTSecret) > 0 {
			tokenString := strings.TrimSpace(c.GetHeader("Authorization"))
			if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "Bearer ") {
				tokenString = tokenString[7:]
			}
			if tokenString != "" {
				claims, err := utils.ValidateServiceToken(cfg.JWTSecret, tokenString)
				if err == nil {
					c.Set(serviceKey, claims.Service)
					c.Next()
					return
				}
				logger.Warn("ServiceAuth: invalid service token", "error", err)
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Unauthorized"})
	}
}

// ServiceFrom names the authenticated caller, or "" when auth is off.
func ServiceFrom(c *gin.Context) string {
	return c.GetString(serviceKey)
}
