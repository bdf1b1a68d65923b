// Package migrations embeds the goose SQL migrations for both database
// dialects. Files under postgres/ and sqlite/ must stay in lockstep: the same
// numbered migration exists in both with dialect-appropriate DDL.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
