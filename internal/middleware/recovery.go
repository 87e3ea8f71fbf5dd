package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
)

// Recovery turns a panic into a logged error with stack trace and a 500
// response: the errors/500.html page for browsers, otherwise the JSON
// envelope {"code": 500, "message": "internal server error", "data": null}.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorContext(c.Request.Context(), "panic recovered",
					slog.Any("panic", err),
					slog.String("method", c.Request.Method),
					slog.String("path", c.Request.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				abortInternal(c)
			}
		}()
		c.Next()
	}
}

// abortInternal stops the chain with a 500 in the form the client accepts.
func abortInternal(c *gin.Context) {
	c.Abort()
	if acceptsHTML(c) {
		renderHTMLError(c)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    http.StatusInternalServerError,
		"message": "internal server error",
		"data":    nil,
	})
}

// renderHTMLError renders errors/500.html, or plain text when no renderer
// is configured.
func renderHTMLError(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("500 Internal Server Error"))
		}
	}()
	c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{"Title": "Server error"})
}

// acceptsHTML reports whether the client asked for HTML.
func acceptsHTML(c *gin.Context) bool {
	return strings.Contains(strings.ToLower(c.GetHeader("Accept")), "text/html")
}
