// Package api holds the OpenAPI description of the scan service's HTTP surface.
// The server publishes it at /openapi.yaml; clients generate their models from it.
package api

import _ "embed"

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen -generate types -package api -o types.gen.go openapi.yaml

//go:embed openapi.yaml
var Spec []byte
