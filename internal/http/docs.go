package httpapi

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//go:embed docs/*.json
var apiDocs embed.FS

const openAPIPath = "/openapi.json"

// registerDocs отдаёт описание API сервиса и Swagger UI поверх него
func registerDocs(e *gin.Engine, name string) {
	raw, err := apiDocs.ReadFile("docs/" + name + ".json")
	if err != nil {
		panic(err)
	}
	e.GET(openAPIPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
	})
	e.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(openAPIPath)))
}
