// Package api holds the OpenAPI description of the REST surface.
package api

import _ "embed"

// Schema is the OpenAPI document served at /api/docs and used for request
// validation.
//
//go:embed openapi.yaml
var Schema []byte
