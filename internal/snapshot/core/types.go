// Package core defines the contract snapshot persistence backends implement.
package core

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a concrete snapshot storage backend implementation.
type Driver string

const (
	// DriverFilesystem is the local filesystem implementation (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 is an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3"
	// DriverMemory is the in-process implementation typically used in tests.
	DriverMemory Driver = "memory"
)

// Info describes one stored snapshot document.
type Info struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size_bytes"`
	ETag    string    `json:"etag,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// Store persists marshaled session snapshots under caller-chosen keys.
// Snapshots are whole-state captures, so Save replaces any previous document
// under the same key and the newest write wins.
type Store interface {
	Save(ctx context.Context, key string, document []byte) (Info, error)
	Load(ctx context.Context, key string) ([]byte, Info, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound is returned when no document exists under a key.
var ErrNotFound = errors.New("snapshot: not found")
