//go:build tools

package tools

// This file tracks tool dependencies for reproducible builds.
// oapi-codegen backs the go:generate directive in internal/api. The goose CLI
// applies or inspects internal/adapters/postgres/migrations by hand; the server
// applies them itself at startup.

import (
	_ "github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen"
	_ "github.com/pressly/goose/v3/cmd/goose"
)
