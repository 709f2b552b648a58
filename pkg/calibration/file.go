// Package calibration persists per-module azimuth offsets.
package calibration

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrMalformed is returned when a stored offset exists but can't be used.
var ErrMalformed = errors.New("malformed azimuth offset")

const offsetFileSuffix = "_AzimuthOffset.txt"

// FileStore keeps one file per module in Dir.  Each file holds a single
// big-endian IEEE-754 double.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) Path(name string) string {
	return filepath.Join(s.Dir, name+offsetFileSuffix)
}

func (s *FileStore) LoadOffset(name string) (float64, bool, error) {
	data, err := os.ReadFile(s.Path(name))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "read offset for %s", name)
	}
	offset, err := decodeOffset(data)
	if err != nil {
		return 0, false, errors.Wrapf(err, "%s", s.Path(name))
	}
	return offset, true, nil
}

func (s *FileStore) SaveOffset(name string, offset float64) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return errors.Wrap(err, "create calibration dir")
	}
	path := s.Path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encodeOffset(offset), 0644); err != nil {
		return errors.Wrapf(err, "write offset for %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "write offset for %s", name)
	}
	return nil
}

func encodeOffset(offset float64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(offset))
	return buf[:]
}

func decodeOffset(data []byte) (float64, error) {
	if len(data) < 8 {
		return 0, errors.Wrapf(ErrMalformed, "%d bytes, expected 8", len(data))
	}
	return checkOffset(math.Float64frombits(binary.BigEndian.Uint64(data[:8])))
}

func checkOffset(offset float64) (float64, error) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return 0, errors.Wrapf(ErrMalformed, "value %v", offset)
	}
	return offset, nil
}
