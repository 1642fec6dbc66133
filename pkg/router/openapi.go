package router

import (
	"net/http"
	"os"

	apischema "mentorchat/backend/api"
	"mentorchat/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// AddOpenAPIValidation validates requests against the OpenAPI schema and
// serves it at /api/docs. OPENAPI_SCHEMA_PATH overrides the embedded copy.
func (r *Router) AddOpenAPIValidation() {
	schema := apischema.Schema
	var (
		v   *validator.OpenAPIValidator
		err error
	)
	if path := os.Getenv("OPENAPI_SCHEMA_PATH"); path != "" && fileExists(path) {
		v, err = validator.NewOpenAPIValidator(path)
		if err == nil {
			schema, err = os.ReadFile(path)
		}
	} else {
		v, err = validator.NewOpenAPIValidatorFromData(schema)
	}
	if err != nil {
		r.Logger.Error("failed to initialize OpenAPI validator", "error", err)
		return
	}

	r.Engine.Use(v.Middleware())
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", schema)
	})
	r.Logger.Info("OpenAPI validation enabled", "url", "/api/docs/openapi.yaml")

	if swaggerUIPath := os.Getenv("SWAGGER_UI_PATH"); swaggerUIPath != "" {
		if info, err := os.Stat(swaggerUIPath); err == nil && info.IsDir() {
			r.Engine.Static("/swagger-ui", swaggerUIPath)
			r.Logger.Info("Swagger UI available", "url", "/swagger-ui/")
		}
	}
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
