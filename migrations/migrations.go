// Package migrations embeds SQL migration files for goose.
//
// Migration files follow the naming convention: NNNNN_description.sql
// They are applied in order by the migrate command and on startup of the
// postgres cache backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
