package middleware

import "github.com/gin-gonic/gin"

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"ok":      false,
		"code":    code,
		"message": message,
	})
}
