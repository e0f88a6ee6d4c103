// Package dbmigrations exposes embedded SQL migrations for swapflow binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into swapflow binaries.
//
//go:embed *.sql
var Files embed.FS
