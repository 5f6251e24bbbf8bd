package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("error", r).
					Str("request_id", c.GetString(requestIDHeader)).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Error interno del servidor")
			}
		}()
		c.Next()
	}
}
