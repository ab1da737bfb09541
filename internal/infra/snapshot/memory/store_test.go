package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"trackable/internal/snapshot/core"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	doc := []byte(`{"root_kind":"carrier"}`)
	info, err := store.Save(ctx, "runs/head.json", doc)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if info.Size != int64(len(doc)) || info.ETag == "" || info.SavedAt.IsZero() {
		t.Fatalf("unexpected info %+v", info)
	}
	got, loaded, err := store.Load(ctx, "runs/head.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, doc) || loaded.ETag != info.ETag {
		t.Fatalf("unexpected load artifacts")
	}
	if _, err := store.Head(ctx, "runs/head.json"); err != nil {
		t.Fatalf("head: %v", err)
	}
	ok, err := store.Delete(ctx, "runs/head.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, _, err := store.Load(ctx, "runs/head.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Save(ctx, "head.json", []byte(`{"rev":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	next := []byte(`{"rev":2}`)
	if _, err := store.Save(ctx, "head.json", next); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, err := store.Load(ctx, "head.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, next) {
		t.Fatalf("load returned stale document: %s", got)
	}
	list, err := store.List(ctx, "")
	if err != nil || len(list) != 1 {
		t.Fatalf("overwrite should keep one entry: %v %+v", err, list)
	}
}

func TestStore_LoadReturnsDetachedCopy(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Save(ctx, "k.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _, err := store.Load(ctx, "k.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got[0] = 'X'
	again, _, err := store.Load(ctx, "k.json")
	if err != nil {
		t.Fatalf("load again: %v", err)
	}
	if again[0] != '{' {
		t.Fatalf("stored document mutated through returned slice")
	}
}

func TestStore_ListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"b.json", "a.json", "runs/c.json"} {
		if _, err := store.Save(ctx, key, []byte(`{}`)); err != nil {
			t.Fatalf("save %s: %v", key, err)
		}
	}
	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Key != "a.json" || all[2].Key != "runs/c.json" {
		t.Fatalf("unexpected order %+v", all)
	}
	runs, err := store.List(ctx, "runs/")
	if err != nil || len(runs) != 1 {
		t.Fatalf("unexpected filtered list: %v %+v", err, runs)
	}
	ok, err := store.Delete(ctx, "missing.json")
	if err != nil || ok {
		t.Fatalf("delete of missing key should report false")
	}
}
