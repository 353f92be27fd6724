package store

import "embed"

//go:embed migration
var migrationFS embed.FS
