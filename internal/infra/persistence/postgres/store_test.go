package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	pgtest "trackable/internal/infra/persistence/postgres/testutil"
	"trackable/pkg/track"
	"trackable/testutil"
)

func newStubStore(t *testing.T) (*Store, *pgtest.StubConn) {
	t.Helper()
	db, conn := pgtest.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("", testutil.BuildRegistry())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, conn
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

func TestNewStoreEnsuresEntitiesTable(t *testing.T) {
	_, conn := newStubStore(t)

	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS entities") {
			sawDDL = true
			break
		}
	}
	if !sawDDL {
		t.Fatalf("expected entities DDL, got execs: %v", conn.Execs)
	}
}

func TestNewStoreFailsWhenOpenFails(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("refused")
	})
	defer restore()

	if _, err := NewStore("", testutil.BuildRegistry()); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewStoreFailsWhenPingFails(t *testing.T) {
	db, conn := pgtest.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	if _, err := NewStore("", testutil.BuildRegistry()); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewStoreRejectsNilRegistry(t *testing.T) {
	_, err := NewStore("", nil)
	var argErr track.InvalidArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("err = %v, want InvalidArgumentError", err)
	}
}

func TestRunInTransactionAppliesFleetAndCommits(t *testing.T) {
	store, conn := newStubStore(t)
	_, fleet := seedFleet(t, store)

	if got := len(conn.Rows); got != testutil.FleetNodeCount {
		t.Fatalf("rows = %d, want %d", got, testutil.FleetNodeCount)
	}
	if conn.Commits != 1 {
		t.Fatalf("commits = %d", conn.Commits)
	}

	payload := conn.Rows[pgtest.RowKey{Kind: testutil.KindCarrier, ID: fleet.CorrelationID().String()}]
	if payload != `{"name":"meridian","region":"north"}` {
		t.Fatalf("carrier payload = %s", payload)
	}
}

func TestRunInTransactionRollsBackOnFailure(t *testing.T) {
	store, conn := newStubStore(t)

	boom := errors.New("walk aborted")
	err := store.RunInTransaction(context.Background(), func(track.StateMachine) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the walk failure", err)
	}
	if conn.Rollbacks != 1 || conn.Commits != 0 {
		t.Fatalf("rollbacks = %d, commits = %d", conn.Rollbacks, conn.Commits)
	}
}

func TestMarkChangedUsesJSONBMergeForSubsetUpdates(t *testing.T) {
	store, conn := newStubStore(t)
	s, fleet := seedCleanFleet(t, store)
	ctx := context.Background()

	shipment := testutil.ShipmentAt(t, fleet.Fleet, 1)
	shipment.SetStatus("delayed")
	if err := store.RunInTransaction(ctx, func(sm track.StateMachine) error {
		return s.ApplyChanges(ctx, sm)
	}); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	var sawMerge bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "payload || $3::jsonb") {
			sawMerge = true
			break
		}
	}
	if !sawMerge {
		t.Fatalf("expected a JSONB merge update, got execs: %v", conn.Execs)
	}

	payload := conn.Rows[pgtest.RowKey{Kind: testutil.KindShipment, ID: shipment.CorrelationID().String()}]
	if payload != `{"code":"SHP-001","priority":1,"status":"delayed"}` {
		t.Fatalf("shipment payload = %s", payload)
	}
}

func TestMarkChangedRewritesPayloadForBlanketUpdates(t *testing.T) {
	store, conn := newStubStore(t)
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

	payload := conn.Rows[pgtest.RowKey{Kind: testutil.KindShipment, ID: shipment.CorrelationID().String()}]
	if payload != `{"code":"SHP-000","priority":9,"status":"rerouted"}` {
		t.Fatalf("shipment payload = %s", payload)
	}
}

func TestMarkRemovedDeletesRow(t *testing.T) {
	store, conn := newStubStore(t)
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

	if _, ok := conn.Rows[pgtest.RowKey{Kind: testutil.KindParcel, ID: doomed.CorrelationID().String()}]; ok {
		t.Fatal("deleted parcel row still present")
	}
	if got := len(conn.Rows); got != testutil.FleetNodeCount-1 {
		t.Fatalf("rows = %d", got)
	}
}

func TestUpdateWithoutRowFails(t *testing.T) {
	store, conn := newStubStore(t)
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
	if conn.Rollbacks != 1 {
		t.Fatalf("rollbacks = %d", conn.Rollbacks)
	}
}

func TestLoadAndCountReadBack(t *testing.T) {
	store, _ := newStubStore(t)
	_, fleet := seedFleet(t, store)
	ctx := context.Background()

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != testutil.FleetNodeCount {
		t.Fatalf("count = %d", n)
	}

	values, err := store.Load(ctx, testutil.KindCarrier, fleet.CorrelationID())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if values["name"] != "meridian" || values["region"] != "north" {
		t.Fatalf("carrier values = %v", values)
	}

	first := testutil.ParcelAt(t, testutil.ShipmentAt(t, fleet.Fleet, 0).Parcels, 0)
	if _, err := store.Load(ctx, "ghost", first.CorrelationID()); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("load missing row: %v, want sql.ErrNoRows", err)
	}
}

func TestCommitFailureSurfaces(t *testing.T) {
	store, conn := newStubStore(t)
	conn.FailCommit = true

	err := store.RunInTransaction(context.Background(), func(track.StateMachine) error {
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("err = %v, want commit failure", err)
	}
}
