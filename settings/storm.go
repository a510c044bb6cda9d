//go:build !tinygo

package settings

import (
	"errors"
	"fmt"

	"github.com/asdine/storm/v3"

	"motorlab/core"
)

const (
	bucketName = "settings"
	recordKey  = "calibration"
)

// record is the stored layout of the calibration
type record struct {
	ControlFlags uint8   `json:"control_flags"`
	DegPerCount  float32 `json:"deg_per_count"`
	Km           float32 `json:"km"`
	Tm           float32 `json:"tm"`
	Zeta         float32 `json:"zeta"`
	Td           float32 `json:"td"`
	Kp           float32 `json:"kp"`
	Kd           float32 `json:"kd"`
	BiasFF       float32 `json:"bias_ff"`
	SpeedFF      float32 `json:"speed_ff"`
	AccFF        float32 `json:"acc_ff"`
}

// StormStore keeps the calibration in a bolt file
type StormStore struct {
	db *storm.DB
}

// OpenStorm opens or creates the settings file at path
func OpenStorm(path string) (*StormStore, error) {
	db, err := storm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settings %s: %w", path, err)
	}
	return &StormStore{db: db}, nil
}

// Load reads the stored record
func (s *StormStore) Load() (core.Calibration, error) {
	var r record
	if err := s.db.Get(bucketName, recordKey, &r); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return core.Calibration{}, ErrNoSettings
		}
		return core.Calibration{}, fmt.Errorf("load settings: %w", err)
	}
	return core.Calibration(r), nil
}

// Save writes the record
func (s *StormStore) Save(cal core.Calibration) error {
	if err := s.db.Set(bucketName, recordKey, record(cal)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Close closes the bolt file
func (s *StormStore) Close() error {
	return s.db.Close()
}
