// Package migrations contains embedded SQL migrations for the SQLite store.
package migrations

import "embed"

//go:embed host/*.sql
var HostFS embed.FS
