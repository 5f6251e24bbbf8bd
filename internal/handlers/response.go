package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"adminpanel/api/internal/service"
)

var statusByCode = map[string]int{
	"INVALID_CREDENTIALS":   http.StatusUnauthorized,
	"ACCOUNT_DISABLED":      http.StatusForbidden,
	"NO_ACTIVE_ROLE":        http.StatusForbidden,
	"AMBIGUOUS_ROLE":        http.StatusConflict,
	"POLICY_NOT_FOUND":      http.StatusInternalServerError,
	"INVALID_TOKEN":         http.StatusUnauthorized,
	"INVALID_REFRESH_TOKEN": http.StatusUnauthorized,
	"INVALID_SESSION":       http.StatusUnauthorized,
	"SESSION_EXPIRED":       http.StatusUnauthorized,
	"SESSION_INACTIVE":      http.StatusUnauthorized,
	"SESSION_NOT_FOUND":     http.StatusNotFound,
	"USER_NOT_FOUND":        http.StatusNotFound,
	"USERNAME_TAKEN":        http.StatusConflict,
	"INVALID_ROLES":         http.StatusBadRequest,
	"VALIDATION_ERROR":      http.StatusBadRequest,
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"ok": true, "data": data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": message})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"ok": false, "code": code, "message": message})
}

// respondServiceError renders an *service.AuthError with its mapped status;
// anything else is logged and hidden behind a generic 500.
func (h HandlerSet) respondServiceError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		status, ok := statusByCode[authErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		respondError(c, status, authErr.Code, authErr.Message)
		return
	}

	h.log.Error().
		Err(err).
		Str("path", c.FullPath()).
		Str("request_id", c.GetString("X-Request-Id")).
		Msg("request failed")
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Error interno del servidor")
}
