package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// point is the on-disk form of a positive entry; negatives are JSON null.
type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FileStore keeps the cache in a single human-readable JSON object:
//
//	{"iñaquito|quito|pichincha": {"lat": -0.17, "lon": -78.48}, "x||": null}
//
// The file is read on first use and rewritten in full on every Put. Writes
// are not atomic and there is no cross-process locking; one writer at a
// time is assumed.
type FileStore struct {
	path string

	mu      sync.Mutex
	loaded  bool
	entries map[string]*point
}

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// load reads the file once. A missing or unreadable file is an empty cache.
func (s *FileStore) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.entries = make(map[string]*point)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		zap.L().Warn("geocode: cache file unreadable, starting empty", zap.String("path", s.path), zap.Error(err))
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		zap.L().Warn("geocode: cache file corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
		s.entries = make(map[string]*point)
	}
	if s.entries == nil {
		s.entries = make(map[string]*point)
	}
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	p, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if p == nil {
		return Negative, true, nil
	}
	return Entry{Found: true, Lat: p.Lat, Lon: p.Lon}, true, nil
}

// Put implements Store.
func (s *FileStore) Put(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	if e.Found {
		s.entries[key] = &point{Lat: e.Lat, Lon: e.Lon}
	} else {
		s.entries[key] = nil
	}
	return s.save()
}

// PutMany implements BulkPutter with a single file write.
func (s *FileStore) PutMany(_ context.Context, entries map[string]Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	for k, e := range entries {
		if e.Found {
			s.entries[k] = &point{Lat: e.Lat, Lon: e.Lon}
		} else {
			s.entries[k] = nil
		}
	}
	return s.save()
}

// Entries implements Lister.
func (s *FileStore) Entries(_ context.Context) (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	out := make(map[string]Entry, len(s.entries))
	for k, p := range s.entries {
		if p == nil {
			out[k] = Negative
		} else {
			out[k] = Entry{Found: true, Lat: p.Lat, Lon: p.Lon}
		}
	}
	return out, nil
}

// Len implements Store.
func (s *FileStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return len(s.entries), nil
}

// Clear implements Store. The file is rewritten as an empty object.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.entries = make(map[string]*point)
	return s.save()
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) save() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.entries); err != nil {
		return eris.Wrap(err, "geocode: encode cache")
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "geocode: write cache %s", s.path)
	}
	return nil
}
