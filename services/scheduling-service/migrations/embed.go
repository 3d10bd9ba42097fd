// Package migrations holds the scheduling-service Postgres schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
