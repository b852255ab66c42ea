package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/OldStager01/car-price-predictor/internal/auth"
	"github.com/OldStager01/car-price-predictor/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	ClientIDKey         = "client_id"
)

// JWTAuth requires a bearer token issued by auth.Service and stores the
// client ID on both the gin context and the request context.
func JWTAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthorizationHeader)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(header, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization header format",
			})
			return
		}

		token := strings.TrimPrefix(header, BearerPrefix)
		claims, err := authService.ValidateToken(token)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "token expired"
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": message,
			})
			return
		}

		c.Set(ClientIDKey, claims.ClientID)
		c.Request = c.Request.WithContext(service.WithClientID(c.Request.Context(), claims.ClientID))

		c.Next()
	}
}

func GetClientID(c *gin.Context) string {
	clientID, exists := c.Get(ClientIDKey)
	if !exists {
		return ""
	}
	return clientID.(string)
}
