package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RegisterSwaggerRoutes mounts the Swagger UI at the configured path.
func RegisterSwaggerRoutes(router *gin.Engine, path string) {
	router.GET(path+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
