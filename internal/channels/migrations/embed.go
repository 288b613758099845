package migrations

import "embed"

// FS contains embedded SQLite migrations for the live-channel store.
//
//go:embed *.sql
var FS embed.FS
