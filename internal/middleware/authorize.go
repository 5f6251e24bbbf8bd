package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"adminpanel/api/internal/rbac"
)

// RequirePermission rejects principals lacking "<module>.<permission>". An
// empty permission means the module's entry permission.
func RequirePermission(module, permission string) gin.HandlerFunc {
	if permission == "" {
		permission = rbac.DefaultPermission
	}

	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "No autenticado")
			return
		}
		if !principal.Can(module, permission) {
			abortWithError(c, http.StatusForbidden, "FORBIDDEN", "Permisos insuficientes")
			return
		}
		c.Next()
	}
}
