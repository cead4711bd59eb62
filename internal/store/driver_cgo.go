//go:build cgo

package store

import (
	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDriverName is "sqlite3" (mattn/go-sqlite3, cgo) whenever cgo is
// available -- it is the faster driver and the only one sqlite-vec's
// cgo bindings can attach to.
const DefaultDriverName = "sqlite3"
