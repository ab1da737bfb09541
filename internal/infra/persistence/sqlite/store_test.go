package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trackable/pkg/track"
	"trackable/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), testutil.BuildRegistry())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedFleet(t *testing.T, store *Store) (*track.Session, *testutil.Carrier) {
	t.Helper()
	ctx := context.Background()
	s, err := track.NewSession(testutil.BuildRegistry(), testutil.KindCarrier)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	fleet := testutil.NewFleet(t)
	if err := s.Roots().Add(fleet); err != nil {
		t.Fatalf("add fleet: %v", err)
	}
	if err := store.RunInTransaction(ctx, func(sm track.StateMachine) error {
		return s.ApplyChanges(ctx, sm)
	}); err != nil {
		t.Fatalf("apply baseline: %v", err)
	}
	return s, fleet
}

func seedCleanFleet(t *testing.T, store *Store) (*track.Session, *testutil.Carrier) {
	t.Helper()
	s, fleet := seedFleet(t, store)
	delta, err := s.GetChanges()
	if err != nil {
		t.Fatalf("get changes: %v", err)
	}
	if err := s.MergeChanges(delta); err != nil {
		t.Fatalf("merge changes: %v", err)
	}
	return s, fleet
}

func mustCount(t *testing.T, store *Store) int {
	t.Helper()
	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestStorePersistsAppliedChangesAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	store, err := NewStore(path, testutil.BuildRegistry())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_, fleet := seedFleet(t, store)
	if got := mustCount(t, store); got != testutil.FleetNodeCount {
		t.Fatalf("rows = %d, want %d", got, testutil.FleetNodeCount)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, testutil.BuildRegistry())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if got := mustCount(t, reloaded); got != testutil.FleetNodeCount {
		t.Fatalf("rows after reopen = %d", got)
	}

	values, err := reloaded.Load(context.Background(), testutil.KindCarrier, fleet.CorrelationID())
	if err != nil {
		t.Fatalf("load carrier: %v", err)
	}
	if values["name"] != "meridian" || values["region"] != "north" {
		t.Fatalf("carrier payload = %v", values)
	}

	first := testutil.ParcelAt(t, testutil.ShipmentAt(t, fleet.Fleet, 0).Parcels, 0)
	values, err = reloaded.Load(context.Background(), testutil.KindParcel, first.CorrelationID())
	if err != nil {
		t.Fatalf("load parcel: %v", err)
	}
	if values["tag"] != "PCL-000-00" || values["weight_kg"] != 0.5 {
		t.Fatalf("parcel payload = %v", values)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store := newStore(t)
	seedFleet(t, store)
	ctx := context.Background()

	s, err := track.NewSession(testutil.BuildRegistry(), testutil.KindDepot)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	dep := &testutil.Depot{Code: "D-1", City: "bergen"}
	if err := s.Roots().Add(dep); err != nil {
		t.Fatalf("add depot: %v", err)
	}
	if _, err := s.GetChanges(); err != nil {
		t.Fatalf("get changes: %v", err)
	}

	boom := errors.New("walk aborted")
	err = store.RunInTransaction(ctx, func(sm track.StateMachine) error {
		if err := sm.BeginInsert(ctx, dep); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the walk failure", err)
	}
	if got := mustCount(t, store); got != testutil.FleetNodeCount {
		t.Fatalf("rows after rollback = %d", got)
	}
	if _, err := store.Load(ctx, testutil.KindDepot, dep.CorrelationID()); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("load rolled-back row: %v, want sql.ErrNoRows", err)
	}
}

func TestDuplicateInsertFailsAndRollsBack(t *testing.T) {
	store := newStore(t)
	s, _ := seedFleet(t, store)
	ctx := context.Background()

	// The graph is still marked added, so replaying it collides with the
	// committed rows.
	err := store.RunInTransaction(ctx, func(sm track.StateMachine) error {
		return s.ApplyChanges(ctx, sm)
	})
	if err == nil || !strings.Contains(err.Error(), "insert") {
		t.Fatalf("err = %v, want insert failure", err)
	}
	if got := mustCount(t, store); got != testutil.FleetNodeCount {
		t.Fatalf("rows after rollback = %d", got)
	}
}

func TestMarkChangedPatchesNamedProperties(t *testing.T) {
	store := newStore(t)
	s, fleet := seedCleanFleet(t, store)
	ctx := context.Background()

	shipment := testutil.ShipmentAt(t, fleet.Fleet, 1)
	shipment.SetStatus("delayed")
	if err := store.RunInTransaction(ctx, func(sm track.StateMachine) error {
		return s.ApplyChanges(ctx, sm)
	}); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	values, err := store.Load(ctx, testutil.KindShipment, shipment.CorrelationID())
	if err != nil {
		t.Fatalf("load shipment: %v", err)
	}
	if values["status"] != "delayed" {
		t.Fatalf("status = %v", values["status"])
	}
	if values["priority"] != float64(1) {
		t.Fatalf("priority = %v, must keep its committed value", values["priority"])
	}
}

func TestMarkChangedWithoutRecordedPropertiesRefreshesPayload(t *testing.T) {
	store := newStore(t)
	s, fleet := seedCleanFleet(t, store)
	ctx := context.Background()

	shipment := testutil.ShipmentAt(t, fleet.Fleet, 0)
	shipment.Status = "rerouted"
	shipment.Priority = 9
	shipment.SetTrackingState(track.StateModified)
	if err := store.RunInTransaction(ctx, func(sm track.StateMachine) error {
		return s.ApplyChanges(ctx, sm)
	}); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	values, err := store.Load(ctx, testutil.KindShipment, shipment.CorrelationID())
	if err != nil {
		t.Fatalf("load shipment: %v", err)
	}
	if values["status"] != "rerouted" || values["priority"] != float64(9) {
		t.Fatalf("payload = %v, want a full refresh", values)
	}
}

func TestMarkRemovedDeletesRow(t *testing.T) {
	store := newStore(t)
	s, fleet := seedCleanFleet(t, store)
	ctx := context.Background()

	shipment := testutil.ShipmentAt(t, fleet.Fleet, 0)
	doomed := testutil.ParcelAt(t, shipment.Parcels, 3)
	if !shipment.Parcels.Remove(doomed) {
		t.Fatal("remove failed")
	}
	if err := store.RunInTransaction(ctx, func(sm track.StateMachine) error {
		return s.ApplyChanges(ctx, sm)
	}); err != nil {
		t.Fatalf("apply delete: %v", err)
	}

	if _, err := store.Load(ctx, testutil.KindParcel, doomed.CorrelationID()); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("load deleted row: %v, want sql.ErrNoRows", err)
	}
	if got := mustCount(t, store); got != testutil.FleetNodeCount-1 {
		t.Fatalf("rows = %d", got)
	}
}

func TestUpdateWithoutRowFails(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	s, err := track.NewSession(testutil.BuildRegistry(), testutil.KindParcel)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	stray := &testutil.Parcel{Tag: "stray"}
	if err := s.Track(stray); err != nil {
		t.Fatalf("track: %v", err)
	}
	stray.SetTag("renamed")

	err = store.RunInTransaction(ctx, func(sm track.StateMachine) error {
		return s.ApplyChanges(ctx, sm)
	})
	if err == nil || !strings.Contains(err.Error(), "row not found") {
		t.Fatalf("err = %v, want unknown row failure", err)
	}
}

func TestNewStoreDefaultsPath(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	store, err := NewStore("", testutil.BuildRegistry())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.Path() != "trackable.db" {
		t.Fatalf("path = %q", store.Path())
	}
	if _, err := os.Stat("trackable.db"); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
}
