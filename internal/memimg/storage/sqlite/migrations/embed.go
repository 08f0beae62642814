// Package migrations embeds the SQLite event log schema.
package migrations

import "embed"

// EventsFS holds the event log migrations under events/.
//
//go:embed events/*.sql
var EventsFS embed.FS
