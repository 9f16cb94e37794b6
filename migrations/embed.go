// Package migrations holds the SQL schema. Files are applied in version
// order by goose.
package migrations

import "embed"

// FS is the schema compiled into the binary
//
//go:embed *.sql
var FS embed.FS
