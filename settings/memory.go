package settings

import "motorlab/core"

// MemoryStore keeps the record in memory. Boards without storage use it.
type MemoryStore struct {
	cal   core.Calibration
	saved bool
}

// Load returns the saved record
func (m *MemoryStore) Load() (core.Calibration, error) {
	if !m.saved {
		return core.Calibration{}, ErrNoSettings
	}
	return m.cal, nil
}

// Save replaces the saved record
func (m *MemoryStore) Save(cal core.Calibration) error {
	m.cal = cal
	m.saved = true
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
