package calibration

import "sync"

// MemoryStore forgets everything on restart.  Used with dummy hardware.
type MemoryStore struct {
	mu      sync.Mutex
	offsets map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{offsets: map[string]float64{}}
}

func (s *MemoryStore) LoadOffset(name string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.offsets[name]
	return v, ok, nil
}

func (s *MemoryStore) SaveOffset(name string, offset float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[name] = offset
	return nil
}
