package app

import "github.com/gin-gonic/gin"

// Module is a feature that registers its own routes: JSON handlers on the
// API group and HTML handlers on the page group.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup)
}
