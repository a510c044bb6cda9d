package settings

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"motorlab/core"
)

var (
	// ErrUnknownSetting is returned for a name that is not in the table
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrNoSettings is returned by a Store that holds no record yet
	ErrNoSettings = errors.New("no stored settings")
)

// Store persists a calibration record
type Store interface {
	Load() (core.Calibration, error)
	Save(cal core.Calibration) error
	Close() error
}

// param describes one tunable value
type param struct {
	name      string
	min, max  float32
	precision int  // digits printed when the value is queried
	model     bool // setting it re-derives the gains
	field     func(*core.Calibration) *float32
}

var params = []param{
	{"KM", 0, 10000, 1, true, func(c *core.Calibration) *float32 { return &c.Km }},
	{"TM", 0, 10, 6, true, func(c *core.Calibration) *float32 { return &c.Tm }},
	{"ZETA", 0, 10, 6, true, func(c *core.Calibration) *float32 { return &c.Zeta }},
	{"TD", 0, 1, 6, true, func(c *core.Calibration) *float32 { return &c.Td }},
	{"KP", 0, 10, 6, false, func(c *core.Calibration) *float32 { return &c.Kp }},
	{"KD", 0, 10, 6, false, func(c *core.Calibration) *float32 { return &c.Kd }},
	{"BIASFF", 0, 10, 3, false, func(c *core.Calibration) *float32 { return &c.BiasFF }},
	{"SPEEDFF", 0, 10, 5, false, func(c *core.Calibration) *float32 { return &c.SpeedFF }},
	{"ACCFF", 0, 10, 6, false, func(c *core.Calibration) *float32 { return &c.AccFF }},
}

func lookup(name string) (*param, error) {
	name = strings.ToUpper(name)
	for i := range params {
		if params[i].name == name {
			return &params[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, name)
}

// Names lists the tunable setting names
func Names() []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.name
	}
	return names
}

// Settings is the working copy of the calibration
type Settings struct {
	cal      core.Calibration
	defaults core.Calibration
	store    Store
}

// New creates working settings initialised from defaults
func New(defaults core.Calibration, store Store) *Settings {
	return &Settings{cal: defaults, defaults: defaults, store: store}
}

// Calibration returns the working copy
func (s *Settings) Calibration() core.Calibration {
	return s.cal
}

// Validated returns the working copy if the controller can run with it
func (s *Settings) Validated() (core.Calibration, error) {
	cal := s.cal
	if err := cal.Validate(); err != nil {
		return cal, err
	}
	return cal, nil
}

// Init restores the built-in defaults
func (s *Settings) Init() {
	s.cal = s.defaults
}

// Read replaces the working copy with the stored record
func (s *Settings) Read() error {
	if s.store == nil {
		return ErrNoSettings
	}
	cal, err := s.store.Load()
	if err != nil {
		return err
	}
	if err := cal.Validate(); err != nil {
		return fmt.Errorf("stored settings: %w", err)
	}
	s.cal = cal
	return nil
}

// Write saves the working copy
func (s *Settings) Write() error {
	if s.store == nil {
		return ErrNoSettings
	}
	return s.store.Save(s.cal)
}

// Get returns a named value
func (s *Settings) Get(name string) (float32, error) {
	p, err := lookup(name)
	if err != nil {
		return 0, err
	}
	return *p.field(&s.cal), nil
}

// Set clamps v to the setting's range, stores it and returns the stored value.
// Model parameters re-derive Kp, Kd and the feedforward terms.
func (s *Settings) Set(name string, v float32) (float32, error) {
	p, err := lookup(name)
	if err != nil {
		return 0, err
	}
	if v < p.min {
		v = p.min
	} else if v > p.max {
		v = p.max
	}
	*p.field(&s.cal) = v
	if p.model {
		s.cal.DeriveGains()
	}
	return v, nil
}

// Flags returns the control flag bits (core.FlagSpeedError)
func (s *Settings) Flags() uint8 {
	return s.cal.ControlFlags
}

// SetFlags replaces the control flag bits
func (s *Settings) SetFlags(flags uint8) {
	s.cal.ControlFlags = flags
}

// Format renders a named value with its query precision
func (s *Settings) Format(name string) (string, error) {
	p, err := lookup(name)
	if err != nil {
		return "", err
	}
	v := *p.field(&s.cal)
	return p.name + " = " + strconv.FormatFloat(float64(v), 'f', p.precision, 32), nil
}

// Print writes every value as NAME = value lines
func (s *Settings) Print(w io.Writer) {
	fmt.Fprintf(w, "%15s = %.5f\n", "DEGPERCOUNT", s.cal.DegPerCount)
	for _, p := range params {
		fmt.Fprintf(w, "%15s = %.*f\n", p.name, p.precision, *p.field(&s.cal))
	}
	fmt.Fprintf(w, "%15s = %d\n", "FLAGS", s.cal.ControlFlags)
}
