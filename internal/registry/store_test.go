package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/reservation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustKey(t *testing.T, path string) reservation.Key {
	t.Helper()
	k, err := reservation.NoTag(path, reservation.ExplicitPath)
	if err != nil {
		t.Fatalf("NoTag: %v", err)
	}
	return k
}

func mustReservation(t *testing.T, path string, p uint16, now int64) reservation.Reservation {
	t.Helper()
	r, err := reservation.New(mustKey(t, path), p, now).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return r
}

func TestStore_TryCreateAtomic_RejectsDuplicatePort(t *testing.T) {
	s := openTestStore(t)
	r1 := mustReservation(t, "/a", 5000, 100)
	r2 := mustReservation(t, "/b", 5000, 100)

	ok, err := s.TryCreateAtomic(r1)
	if err != nil || !ok {
		t.Fatalf("first create: ok=%v err=%v", ok, err)
	}
	ok, err = s.TryCreateAtomic(r2)
	if err != nil {
		t.Fatalf("second create: unexpected error %v", err)
	}
	if ok {
		t.Fatal("second create on the same port should report ok=false, not an error")
	}
}

func TestStore_GetByKey_NullSafeTagMatch(t *testing.T) {
	s := openTestStore(t)
	r := mustReservation(t, "/home/dev/prj", 5000, 100)
	if _, err := s.TryCreateAtomic(r); err != nil {
		t.Fatalf("TryCreateAtomic: %v", err)
	}

	got, found, err := s.GetByKey(mustKey(t, "/home/dev/prj"))
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if !found || got.Port != 5000 {
		t.Fatalf("got=%+v found=%v, want the tagless reservation to be found by a tagless key", got, found)
	}

	tagged, err := reservation.WithTag("/home/dev/prj", "web", reservation.ExplicitPath)
	if err != nil {
		t.Fatalf("WithTag: %v", err)
	}
	if _, found, err := s.GetByKey(tagged); err != nil || found {
		t.Fatalf("a tagged key must not match a tagless row: found=%v err=%v", found, err)
	}
}

func TestStore_UpsertByKey_ReplacesExistingRow(t *testing.T) {
	s := openTestStore(t)
	key := mustKey(t, "/home/dev/prj")
	r := mustReservation(t, "/home/dev/prj", 5000, 100)
	if _, err := s.TryCreateAtomic(r); err != nil {
		t.Fatalf("TryCreateAtomic: %v", err)
	}

	updated, err := reservation.New(key, 5000, 100).WithProject("alpha").WithTimestamps(100, 200).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := s.UpsertByKey(updated); err != nil {
		t.Fatalf("UpsertByKey: %v", err)
	}

	got, found, err := s.GetByKey(key)
	if err != nil || !found {
		t.Fatalf("GetByKey after upsert: found=%v err=%v", found, err)
	}
	if !got.HasProject || got.Project != "alpha" || got.LastUsedAt != 200 {
		t.Fatalf("got=%+v, want project=alpha last_used_at=200", got)
	}
}

func TestStore_UpdateLastUsed_ReportsFalseWhenAbsent(t *testing.T) {
	s := openTestStore(t)
	ok, err := s.UpdateLastUsed(mustKey(t, "/nowhere"), 500)
	if err != nil {
		t.Fatalf("UpdateLastUsed: %v", err)
	}
	if ok {
		t.Error("UpdateLastUsed on an absent key should report false")
	}
}

func TestStore_Delete_RemovesRowAndFreesPort(t *testing.T) {
	s := openTestStore(t)
	key := mustKey(t, "/home/dev/prj")
	r := mustReservation(t, "/home/dev/prj", 5000, 100)
	if _, err := s.TryCreateAtomic(r); err != nil {
		t.Fatalf("TryCreateAtomic: %v", err)
	}

	ok, err := s.Delete(key)
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if _, found, _ := s.GetByKey(key); found {
		t.Error("reservation should be gone after delete")
	}

	reserved, err := s.IsPortReserved(port.Port(5000))
	if err != nil {
		t.Fatalf("IsPortReserved: %v", err)
	}
	if reserved {
		t.Error("port should be free again after delete")
	}
}

func TestStore_ListByPathPrefix(t *testing.T) {
	s := openTestStore(t)
	for i, p := range []string{"/home/dev/prj", "/home/dev/prj/sub", "/home/dev/other"} {
		r := mustReservation(t, p, uint16(5000+i), 100)
		if _, err := s.TryCreateAtomic(r); err != nil {
			t.Fatalf("TryCreateAtomic(%s): %v", p, err)
		}
	}

	got, err := s.ListByPathPrefix("/home/dev/prj")
	if err != nil {
		t.Fatalf("ListByPathPrefix: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d reservations, want 2 under /home/dev/prj", len(got))
	}
}

func TestStore_FindExpired(t *testing.T) {
	s := openTestStore(t)
	stale := mustReservation(t, "/stale", 5000, 100)
	fresh := mustReservation(t, "/fresh", 5001, 100)
	fresh.LastUsedAt = 99000
	stale.LastUsedAt = 100
	if _, err := s.TryCreateAtomic(stale); err != nil {
		t.Fatalf("TryCreateAtomic(stale): %v", err)
	}
	if _, err := s.TryCreateAtomic(fresh); err != nil {
		t.Fatalf("TryCreateAtomic(fresh): %v", err)
	}

	expired, err := s.FindExpired(100000, 1000)
	if err != nil {
		t.Fatalf("FindExpired: %v", err)
	}
	if len(expired) != 1 || expired[0].Key.Path != "/stale" {
		t.Fatalf("expired = %+v, want only /stale", expired)
	}
}

func TestStore_IntegrityCheck_OK(t *testing.T) {
	s := openTestStore(t)
	if err := s.IntegrityCheck(); err != nil {
		t.Fatalf("IntegrityCheck on a freshly-migrated database: %v", err)
	}
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		r := mustReservation(t, "/rolled-back", 5000, 100)
		if _, err := tx.TryCreateAtomic(r); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v, want boom", err)
	}

	if _, found, _ := s.GetByKey(mustKey(t, "/rolled-back")); found {
		t.Error("a reservation created inside a rolled-back transaction must not persist")
	}
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	s := openTestStore(t)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		r := mustReservation(t, "/committed", 5000, 100)
		_, err := tx.TryCreateAtomic(r)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	if _, found, _ := s.GetByKey(mustKey(t, "/committed")); !found {
		t.Error("a reservation created inside a committed transaction should persist")
	}
}

func TestStore_SchemaVersionStampedOnFreshDatabase(t *testing.T) {
	s := openTestStore(t)
	v, err := s.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if v != CurrentSchemaVersion {
		t.Errorf("schema_version = %d, want %d", v, CurrentSchemaVersion)
	}
}
