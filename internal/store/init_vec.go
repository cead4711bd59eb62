//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Auto-load sqlite-vec into every mattn/go-sqlite3 connection so the
	// vec0 probe in detectVecExtension finds the real extension.
	vec.Auto()
}
