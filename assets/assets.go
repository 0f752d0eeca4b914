// Package assets embeds the files shipped with the binaries: email templates and SQL migrations.
package assets

import "embed"

//go:embed all:templates migrations
var FS embed.FS

const (
	EmailTemplatesDir = "templates/email"
	MigrationsDir     = "migrations"
)
