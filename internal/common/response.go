package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes {"success": true, ...data}.
func OK(c *gin.Context, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"success": false,
		"code":    code,
		"message": msg,
	})
}

// Abort is Fail for middleware: the rest of the chain is skipped.
func Abort(c *gin.Context, httpStatus int, code int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"success": false,
		"code":    code,
		"message": msg,
	})
}
