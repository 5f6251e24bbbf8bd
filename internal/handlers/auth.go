package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"adminpanel/api/internal/middleware"
	"adminpanel/api/internal/models"
	"adminpanel/api/internal/service"
)

type loginRequest struct {
	Username string `json:"usuario" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	AccessToken   string              `json:"accessToken"`
	User          service.UserProfile `json:"user"`
	RoleID        int64               `json:"roleId"`
	DefaultModule *models.MenuModule  `json:"defaultModule"`
	Menu          []models.MenuModule `json:"menu"`
}

type sessionResponse struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	UserAgent      string    `json:"userAgent,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Current        bool      `json:"current"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		Client:   clientInfo(c),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	h.sendAuthResponse(c, result)
}

func (h HandlerSet) Refresh(c *gin.Context) {
	token := h.refreshTokenFromCookie(c)
	if token == "" {
		respondError(c, http.StatusUnauthorized, "MISSING_REFRESH_TOKEN", "Token de refresco requerido")
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		h.clearRefreshCookie(c)
		h.respondServiceError(c, err)
		return
	}

	h.sendAuthResponse(c, result)
}

func (h HandlerSet) Logout(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "No autenticado")
		return
	}

	if err := h.auth.Logout(c.Request.Context(), principal.SessionID); err != nil {
		h.respondServiceError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	respondMessage(c, "Sesión cerrada exitosamente")
}

func (h HandlerSet) Me(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "No autenticado")
		return
	}

	profile, err := h.auth.Profile(c.Request.Context(), principal.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, profile)
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "No autenticado")
		return
	}

	sessions, err := h.auth.Sessions(c.Request.Context(), principal.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse{
			ID:             s.ID,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAtAbsolute,
			Current:        s.ID == principal.SessionID,
		})
	}

	respondOK(c, http.StatusOK, resp)
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "No autenticado")
		return
	}

	sessionID := c.Param("id")
	if sessionID == principal.SessionID {
		respondError(c, http.StatusBadRequest, "CURRENT_SESSION", "Use el cierre de sesión para la sesión actual")
		return
	}

	if err := h.auth.RevokeSession(c.Request.Context(), principal.UserID, sessionID); err != nil {
		h.respondServiceError(c, err)
		return
	}

	respondMessage(c, "Sesión revocada")
}

func (h HandlerSet) sendAuthResponse(c *gin.Context, result service.AuthResult) {
	h.setRefreshCookie(c, result.RefreshToken, result.RefreshExpiresAt)
	respondOK(c, http.StatusOK, authResponse{
		AccessToken:   result.AccessToken,
		User:          result.Profile.User,
		RoleID:        result.Profile.RoleID,
		DefaultModule: result.Profile.DefaultModule,
		Menu:          result.Profile.Menu,
	})
}

// clientInfo captures the caller's address, agent and client hint headers.
func clientInfo(c *gin.Context) models.ClientInfo {
	info := models.ClientInfo{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	device := map[string]string{}
	if platform := strings.Trim(c.GetHeader("Sec-CH-UA-Platform"), `"`); platform != "" {
		device["platform"] = platform
	}
	if mobile := c.GetHeader("Sec-CH-UA-Mobile"); mobile != "" {
		device["mobile"] = mobile
	}
	if len(device) > 0 {
		if raw, err := json.Marshal(device); err == nil {
			info.DeviceInfo = raw
		}
	}
	return info
}
