// Package migrations embeds the versioned schema for each supported database
// driver. Files follow golang-migrate naming: NNNNNN_name.{up,down}.sql.
package migrations

import "embed"

// FS holds one directory of migrations per driver name
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
