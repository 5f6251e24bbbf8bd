package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"adminpanel/api/internal/service"
)

const principalKey = "auth_principal"

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (service.Principal, error)
}

// Auth admits requests with a valid bearer access token bound to a live
// session and stores the resulting principal on the context.
func Auth(auth Authenticator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abortWithError(c, http.StatusUnauthorized, "MISSING_TOKEN", "Token de acceso requerido")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			var authErr *service.AuthError
			if errors.As(err, &authErr) {
				abortWithError(c, http.StatusUnauthorized, authErr.Code, authErr.Message)
				return
			}
			log.Error().Err(err).Str("request_id", c.GetString(requestIDHeader)).Msg("authenticate request")
			abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Error interno del servidor")
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// CurrentPrincipal returns the principal stored by Auth.
func CurrentPrincipal(c *gin.Context) (service.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return service.Principal{}, false
	}
	p, ok := v.(service.Principal)
	return p, ok
}
