package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"adminpanel/api/internal/middleware"
)

func (h HandlerSet) Menu(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "No autenticado")
		return
	}

	menu, err := h.menu.Menu(c.Request.Context(), principal.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, menu)
}
