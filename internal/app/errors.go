package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/dogmatch/internal/pkg"
)

// errorPages maps status codes to their templates. Other codes use the 500
// page.
var errorPages = map[int]string{
	http.StatusBadRequest:          "errors/400.html",
	http.StatusForbidden:           "errors/403.html",
	http.StatusNotFound:            "errors/404.html",
	http.StatusInternalServerError: "errors/500.html",
}

// renderError writes an error page for browsers and the JSON envelope for
// everyone else.
func renderError(c *gin.Context, code int, message string) {
	if wantsJSON(c) {
		c.JSON(code, pkg.Response{Code: code, Message: message})
		return
	}
	renderErrorPage(c, code, message)
}

// renderErrorPage renders the page for code. It degrades to plain text when
// no renderer is installed.
func renderErrorPage(c *gin.Context, code int, message string) {
	defer func() {
		if r := recover(); r != nil {
			c.Data(code, "text/plain; charset=utf-8", fmt.Appendf(nil, "%d %s", code, statusTitle(code)))
		}
	}()

	page, ok := errorPages[code]
	if !ok {
		page = errorPages[http.StatusInternalServerError]
	}
	c.HTML(code, page, gin.H{
		"Title":   statusTitle(code),
		"Message": message,
	})
}

// wantsJSON reports whether the client should get JSON. An explicit
// application/json wins over */*; text/html, */* and an empty Accept header
// get HTML.
func wantsJSON(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	switch {
	case strings.Contains(accept, "text/html"):
		return false
	case strings.Contains(accept, "application/json"):
		return true
	default:
		return !acceptsHTML(c)
	}
}

func acceptsHTML(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	return strings.Contains(accept, "text/html") ||
		strings.Contains(accept, "*/*") ||
		strings.TrimSpace(accept) == ""
}

func statusTitle(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Error"
}
