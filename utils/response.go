package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends the success envelope {status, message, data}
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends the error envelope {status, message, error}. It does not abort
// the handler chain; middleware that rejects a request calls c.Abort itself.
func JSONError(c *gin.Context, status int, err error, message string) {
	detail := message
	if err != nil {
		detail = err.Error()
	}
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   detail,
	})
}
