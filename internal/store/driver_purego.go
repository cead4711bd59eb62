//go:build !cgo

package store

// DefaultDriverName is "sqlite" (modernc.org/sqlite, pure Go) for
// cgo-disabled builds -- the CLI tooling path that must run on machines
// without a C toolchain. vec_compat.go supplies vec0/vector_distance_cos
// against this driver so vector search still works without the cgo
// extension.
const DefaultDriverName = "sqlite"
