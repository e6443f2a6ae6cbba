package port

// MockChecker is a deterministic occupancy fake for tests: it reports
// exactly the ports that have been marked occupied. Of the check flags
// it honors only Skip (every answer is then false); the per-protocol
// and per-family skip flags are ignored.
type MockChecker struct {
	occupied map[Port]struct{}
}

// NewMockChecker returns an empty mock (nothing occupied).
func NewMockChecker() *MockChecker {
	return &MockChecker{occupied: make(map[Port]struct{})}
}

// MarkOccupied flags p as occupied.
func (m *MockChecker) MarkOccupied(p Port) {
	m.occupied[p] = struct{}{}
}

// MarkFree clears any occupied flag on p.
func (m *MockChecker) MarkFree(p Port) {
	delete(m.occupied, p)
}

// OccupiedPorts returns the current occupied set, ascending.
func (m *MockChecker) OccupiedPorts() []Port {
	out := make([]Port, 0, len(m.occupied))
	for p := range m.occupied {
		out = append(out, p)
	}
	sortPorts(out)
	return out
}

func (m *MockChecker) IsOccupied(p Port, cfg CheckConfig) (bool, error) {
	if cfg.Skip {
		return false, nil
	}
	_, ok := m.occupied[p]
	return ok, nil
}

func (m *MockChecker) FindOccupied(r Range, cfg CheckConfig) ([]Port, error) {
	var out []Port
	for p := r.Min; ; p++ {
		occ, _ := m.IsOccupied(p, cfg)
		if occ {
			out = append(out, p)
		}
		if p == r.Max {
			break
		}
	}
	return out, nil
}
