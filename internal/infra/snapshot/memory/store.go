// Package memory implements an in-memory snapshot Store for tests.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"trackable/internal/snapshot/core"
)

type snapshotEntry struct {
	info core.Info
	data []byte
}

// Store implements core.Store backed by process memory. Intended for tests.
type Store struct {
	mu   sync.RWMutex
	objs map[string]snapshotEntry
}

// New returns an in-memory snapshot store.
func New() *Store { return &Store{objs: make(map[string]snapshotEntry)} }

// Driver returns the snapshot driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Save stores the document under key, replacing any previous revision.
func (s *Store) Save(_ context.Context, key string, document []byte) (core.Info, error) {
	if key == "" {
		return core.Info{}, fmt.Errorf("empty key")
	}
	data := make([]byte, len(document))
	copy(data, document)
	sum := sha256.Sum256(data)
	info := core.Info{
		Key:     key,
		Size:    int64(len(data)),
		ETag:    hex.EncodeToString(sum[:]),
		SavedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.objs[key] = snapshotEntry{info: info, data: data}
	s.mu.Unlock()
	return info, nil
}

// Load returns a detached copy of the document and its metadata.
func (s *Store) Load(_ context.Context, key string) ([]byte, core.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, core.Info{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)
	return dataCopy, obj.info, nil
}

// Head returns snapshot metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return obj.info, nil
}

// Delete removes the snapshot returning true if it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	if ok {
		delete(s.objs, key)
	}
	return ok, nil
}

// List returns all snapshots matching prefix sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.objs))
	for k, v := range s.objs {
		if prefix == "" || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			out = append(out, v.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
