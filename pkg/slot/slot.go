package slot

import (
	"errors"
	"sync"
	"time"
)

// VersionRejected is returned in place of a version when an update is not
// applied. It is below the initial slot version.
const VersionRejected int64 = -1

var (
	ErrEmptyKey     = errors.New("empty key")
	ErrNotFound     = errors.New("not found")
	ErrStaleVersion = errors.New("stale version")
)

// Slot is a versioned key-value map containing one origin node's data, as
// seen by the local node.
//
// The version never decreases. Local updates set the version to the current
// time in milliseconds, and remote updates adopt the version carried by the
// update, as long as it isn't older than the current version.
type Slot struct {
	name string

	// mu protects the below fields.
	mu sync.Mutex

	version    int64
	entries    map[string]string
	memoryUsed int

	now func() time.Time
}

func New(name string) *Slot {
	return &Slot{
		name:    name,
		entries: make(map[string]string),
		now:     time.Now,
	}
}

// Name returns the name of the node that owns the slot.
func (s *Slot) Name() string {
	return s.name
}

func (s *Slot) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.version
}

// MemoryUsed returns the size of the slot entries in bytes.
func (s *Slot) MemoryUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.memoryUsed
}

func (s *Slot) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Put sets the value of the given key and advances the version to the current
// time.
func (s *Slot) Put(key string, value string) (int64, error) {
	if key == "" {
		return VersionRejected, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(key, value)
	s.version = s.nextVersion()
	return s.version, nil
}

// PutWithVersion sets the value of the given key and adopts the given
// version. The update is rejected if the version is older than the current
// slot version.
func (s *Slot) PutWithVersion(key string, value string, version int64) (int64, error) {
	if key == "" {
		return VersionRejected, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if version < s.version {
		return VersionRejected, ErrStaleVersion
	}

	s.set(key, value)
	s.version = version
	return s.version, nil
}

// Delete removes the given key and advances the version to the current time.
func (s *Slot) Delete(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remove(key) {
		return VersionRejected, ErrNotFound
	}
	s.version = s.nextVersion()
	return s.version, nil
}

// DeleteWithVersion removes the given key and adopts the given version. The
// update is rejected if the version is older than the current slot version.
func (s *Slot) DeleteWithVersion(key string, version int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version < s.version {
		return VersionRejected, ErrStaleVersion
	}
	if !s.remove(key) {
		return VersionRejected, ErrNotFound
	}
	s.version = version
	return s.version, nil
}

// MergeAll replaces all entries in the slot with the given entries, as long as
// the version isn't older than the current version.
//
// This replaces the full slot rather than merging per key, so the most
// recent snapshot of the origin wins.
func (s *Slot) MergeAll(entries map[string]string, version int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version < s.version {
		return VersionRejected, ErrStaleVersion
	}

	s.entries = make(map[string]string, len(entries))
	s.memoryUsed = 0
	for k, v := range entries {
		s.set(k, v)
	}
	s.version = version
	return s.version, nil
}

// Lookup returns the value of the given key along with the current slot
// version.
func (s *Slot) Lookup(key string) (string, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]
	if !ok {
		return "", s.version, false
	}
	return v, s.version, true
}

// Snapshot returns a copy of the slot entries and the version of that copy.
func (s *Slot) Snapshot() (map[string]string, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	return entries, s.version
}

func (s *Slot) set(key string, value string) {
	if old, ok := s.entries[key]; ok {
		s.memoryUsed -= len(key) + len(old)
	}
	s.entries[key] = value
	s.memoryUsed += len(key) + len(value)
}

func (s *Slot) remove(key string) bool {
	old, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	s.memoryUsed -= len(key) + len(old)
	return true
}

// nextVersion returns the current time in milliseconds, or one more than the
// current version if the clock hasn't advanced.
func (s *Slot) nextVersion() int64 {
	v := s.now().UnixMilli()
	if v <= s.version {
		v = s.version + 1
	}
	return v
}
