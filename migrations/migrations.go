// Package migrations содержит goose-миграции таблиц, которыми владеет relay.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
