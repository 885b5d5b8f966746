// Package preview holds the locally renderable copies of uploaded images.
//
// A Handle is an opaque reference to one preview. Handles are scarce: every
// Acquire must be matched by a Release when the owning image is replaced,
// cleared, or the controller shuts down. Released handles stop resolving.
package preview

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PathPrefix is the URL prefix under which previews are served.
const PathPrefix = "/preview/"

type entry struct {
	data     []byte
	mimeType string
}

// Store is a process-wide registry of live preview handles.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStore creates an empty preview store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Acquire registers preview bytes and returns a handle referencing them.
func (s *Store) Acquire(data []byte, mimeType string) *Handle {
	id := uuid.NewString()

	s.mu.Lock()
	s.entries[id] = entry{data: data, mimeType: mimeType}
	live := len(s.entries)
	s.mu.Unlock()

	log.Debug().
		Str("handle", id).
		Int("bytes", len(data)).
		Int("live", live).
		Msg("Preview handle acquired")

	return &Handle{id: id, store: s}
}

// Get returns the preview bytes for a live handle id.
func (s *Store) Get(id string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e.data, e.mimeType, ok
}

// Len reports the number of live handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) release(id string) {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	live := len(s.entries)
	s.mu.Unlock()

	if ok {
		log.Debug().Str("handle", id).Int("live", live).Msg("Preview handle released")
	}
}

// ServeHTTP serves GET /preview/{id}.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, PathPrefix)
	data, mimeType, ok := s.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	// Ids are never reused, so the content behind one is immutable.
	w.Header().Set("Cache-Control", "private, max-age=3600, immutable")
	w.Write(data)
}

// Handle is an opaque, releasable reference to one preview.
type Handle struct {
	id    string
	store *Store
	once  sync.Once
}

// ID returns the handle id.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// URL returns the path the preview is served from.
func (h *Handle) URL() string {
	if h == nil {
		return ""
	}
	return PathPrefix + h.id
}

// Release frees the preview. It is safe to call more than once and on nil.
func (h *Handle) Release() {
	if h == nil || h.store == nil {
		return
	}
	h.once.Do(func() {
		h.store.release(h.id)
	})
}
