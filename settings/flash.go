package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"motorlab/core"
)

// recordMagic marks a written settings block ("MLB1")
const recordMagic = 0x31424c4d

// RecordSize is the encoded size of a calibration record
const RecordSize = 4 + 4 + 10*4 + 4

// ErrBadRecord is returned when stored bytes fail the magic or checksum test
var ErrBadRecord = errors.New("corrupt settings record")

// BlockDevice is erasable storage such as TinyGo's machine.Flash
type BlockDevice interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	EraseBlockSize() int64
	EraseBlocks(start, length int64) error
}

// EncodeRecord lays out cal as magic, flags, ten little-endian floats and
// a CRC-32 of everything before it.
func EncodeRecord(cal core.Calibration) []byte {
	p := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(p[0:], recordMagic)
	p[4] = cal.ControlFlags
	for i, v := range floats(&cal) {
		binary.LittleEndian.PutUint32(p[8+4*i:], math.Float32bits(*v))
	}
	binary.LittleEndian.PutUint32(p[RecordSize-4:], crc32.ChecksumIEEE(p[:RecordSize-4]))
	return p
}

// DecodeRecord is the inverse of EncodeRecord. Erased flash reads as
// ErrNoSettings.
func DecodeRecord(p []byte) (core.Calibration, error) {
	var cal core.Calibration
	if len(p) < RecordSize {
		return cal, fmt.Errorf("%w: %d bytes", ErrBadRecord, len(p))
	}
	switch binary.LittleEndian.Uint32(p) {
	case recordMagic:
	case 0xffffffff:
		return cal, ErrNoSettings
	default:
		return cal, fmt.Errorf("%w: bad magic", ErrBadRecord)
	}
	if crc32.ChecksumIEEE(p[:RecordSize-4]) != binary.LittleEndian.Uint32(p[RecordSize-4:]) {
		return cal, fmt.Errorf("%w: checksum mismatch", ErrBadRecord)
	}
	cal.ControlFlags = p[4]
	for i, v := range floats(&cal) {
		*v = math.Float32frombits(binary.LittleEndian.Uint32(p[8+4*i:]))
	}
	return cal, nil
}

func floats(c *core.Calibration) [10]*float32 {
	return [10]*float32{&c.DegPerCount, &c.Km, &c.Tm, &c.Zeta, &c.Td,
		&c.Kp, &c.Kd, &c.BiasFF, &c.SpeedFF, &c.AccFF}
}

// FlashStore keeps the record at the start of a block device
type FlashStore struct {
	dev BlockDevice
}

// NewFlashStore uses the first erase block of dev
func NewFlashStore(dev BlockDevice) *FlashStore {
	return &FlashStore{dev: dev}
}

// Load reads and checks the record
func (f *FlashStore) Load() (core.Calibration, error) {
	p := make([]byte, RecordSize)
	if _, err := f.dev.ReadAt(p, 0); err != nil {
		return core.Calibration{}, fmt.Errorf("load settings: %w", err)
	}
	return DecodeRecord(p)
}

// Save erases the first block and writes the record
func (f *FlashStore) Save(cal core.Calibration) error {
	if err := f.dev.EraseBlocks(0, 1); err != nil {
		return fmt.Errorf("erase settings: %w", err)
	}
	if _, err := f.dev.WriteAt(EncodeRecord(cal), 0); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Close is a no-op
func (f *FlashStore) Close() error {
	return nil
}
