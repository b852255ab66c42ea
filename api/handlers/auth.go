package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/auth"
	"github.com/OldStager01/car-price-predictor/pkg/database/queries"
	"github.com/gin-gonic/gin"
)

type ClientStore interface {
	GetByClientID(ctx context.Context, clientID string) (*queries.APIClient, error)
}

type AuthHandler struct {
	clients     ClientStore
	authService *auth.Service
}

func NewAuthHandler(clients ClientStore, authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		clients:     clients,
		authService: authService,
	}
}

type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required" example:"dealer-portal"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type" example:"Bearer"`
	ExpiresIn int    `json:"expires_in" example:"86400"`
	ClientID  string `json:"client_id" example:"dealer-portal"`
}

// Token godoc
// @Summary Issue access token
// @Description Exchanges API client credentials for a bearer token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body TokenRequest true "Client credentials"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 429 {object} map[string]string "Too many attempts"
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	client, err := h.clients.GetByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, queries.ErrClientNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if !auth.CheckSecret(req.ClientSecret, client.SecretHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.authService.GenerateToken(client.ClientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(h.authService.Duration().Seconds()),
		ClientID:  client.ClientID,
	})
}
