// Package api embeds the OpenAPI description served under /api.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
