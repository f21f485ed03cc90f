package middleware

import (
	"github.com/ErlanBelekov/task-scheduler/internal/requestid"
	"github.com/gin-gonic/gin"
)

// RequestID puts a request ID on the context and the response header,
// keeping a well-formed client-supplied one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestid.Accept(c.GetHeader(requestid.Header))

		ctx := requestid.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestid.Header, id)
		c.Next()
	}
}
