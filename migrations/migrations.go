// Package migrations embeds the goose migration sets for both store dialects.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
