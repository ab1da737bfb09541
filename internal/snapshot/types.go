// Package snapshot re-exports core snapshot abstractions for stable imports
// and selects a concrete backend from the environment.
package snapshot

import (
	"trackable/internal/snapshot/core"
)

type (
	// Driver identifies a snapshot backend driver.
	Driver = core.Driver
	// Info describes stored snapshot metadata.
	Info = core.Info
	// Store is the interface for snapshot storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrNotFound indicates no document exists under a key.
var ErrNotFound = core.ErrNotFound
