package snapshot

import (
	memorystore "trackable/internal/infra/snapshot/memory"
)

// NewMemory returns an in-memory snapshot.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }
