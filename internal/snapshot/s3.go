package snapshot

import (
	"context"

	s3store "trackable/internal/infra/snapshot/s3"
)

// S3Config re-exports the infra S3 configuration type for call sites inside
// the internal tree.
type S3Config = s3store.Config

// NewS3 constructs an S3-backed snapshot.Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return s3store.New(ctx, cfg)
}

// OpenFromEnv constructs an S3 store using environment variables.
func OpenFromEnv(ctx context.Context) (Store, error) {
	return s3store.OpenFromEnv(ctx)
}

// NewMockS3ForTests exposes the mocked in-memory transport for cross-package
// tests.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
