package ops

import (
	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/reservation"
)

// fakeStore is an in-memory stand-in for registry.Store/registry.Tx used
// by the planner and executor tests: it satisfies both View and Txn
// without touching SQLite, the same role newFakeReserved plays for the
// allocator's own tests.
type fakeStore struct {
	byKey  map[string]reservation.Reservation
	byPort map[uint16]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: make(map[string]reservation.Reservation), byPort: make(map[uint16]string)}
}

func (s *fakeStore) IsPortReserved(p port.Port) (bool, error) {
	_, ok := s.byPort[uint16(p)]
	return ok, nil
}

func (s *fakeStore) GetByKey(key reservation.Key) (reservation.Reservation, bool, error) {
	r, ok := s.byKey[key.String()]
	return r, ok, nil
}

func (s *fakeStore) TryCreateAtomic(r reservation.Reservation) (bool, error) {
	if _, taken := s.byPort[r.Port]; taken {
		return false, nil
	}
	s.byKey[r.Key.String()] = r
	s.byPort[r.Port] = r.Key.String()
	return true, nil
}

func (s *fakeStore) UpsertByKey(r reservation.Reservation) error {
	if old, ok := s.byKey[r.Key.String()]; ok {
		delete(s.byPort, old.Port)
	}
	s.byKey[r.Key.String()] = r
	s.byPort[r.Port] = r.Key.String()
	return nil
}

func (s *fakeStore) UpdateLastUsed(key reservation.Key, now int64) (bool, error) {
	r, ok := s.byKey[key.String()]
	if !ok {
		return false, nil
	}
	r.LastUsedAt = now
	s.byKey[key.String()] = r
	return true, nil
}

func (s *fakeStore) Delete(key reservation.Key) (bool, error) {
	r, ok := s.byKey[key.String()]
	if !ok {
		return false, nil
	}
	delete(s.byKey, key.String())
	delete(s.byPort, r.Port)
	return true, nil
}

func put(s *fakeStore, r reservation.Reservation) {
	s.byKey[r.Key.String()] = r
	s.byPort[r.Port] = r.Key.String()
}
