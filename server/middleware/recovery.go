package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/logger"
)

// Recovery turns handler panics into 500 responses and logs the stack.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", logger.Fields(
					logger.FieldError, fmt.Sprint(r),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				))
				status, body := apperrors.Status(apperrors.FromPanic(r))
				c.AbortWithStatusJSON(status, body)
			}
		}()
		c.Next()
	}
}
