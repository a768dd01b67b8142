// Package migrations embeds the postgres schema migrations so the server and
// the migrate command run the same files without a checkout on disk.
package migrations

import "embed"

// FS holds the numbered *.up.sql / *.down.sql pairs
//
//go:embed *.sql
var FS embed.FS
