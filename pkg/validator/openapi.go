package validator

import (
	"context"
	"fmt"

	"mentorchat/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator validates requests against an OpenAPI specification
type OpenAPIValidator struct {
	swagger *openapi3.T
	router  routers.Router
}

// NewOpenAPIValidator creates a validator from a schema file
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", schemaPath, err)
	}
	return newValidator(loader.Context, swagger)
}

// NewOpenAPIValidatorFromData creates a validator from an in-memory schema
func NewOpenAPIValidatorFromData(data []byte) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI schema: %w", err)
	}
	return newValidator(loader.Context, swagger)
}

func newValidator(ctx context.Context, swagger *openapi3.T) (*OpenAPIValidator, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := swagger.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{swagger: swagger, router: router}, nil
}

// Middleware returns a Gin middleware that rejects requests violating the
// schema. Routes the schema does not describe pass through.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         false,
			},
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.Error(errors.NewValidationError("request does not match the API schema").WithDetails(err.Error()))
			c.Abort()
			return
		}

		c.Next()
	}
}
