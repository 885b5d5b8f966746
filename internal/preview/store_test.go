package preview

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	s := NewStore()

	h := s.Acquire([]byte("abc"), "image/png")
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	data, mime, ok := s.Get(h.ID())
	if !ok || string(data) != "abc" || mime != "image/png" {
		t.Errorf("Get(%q) = (%q, %q, %v)", h.ID(), data, mime, ok)
	}

	h.Release()
	h.Release()
	if s.Len() != 0 {
		t.Errorf("Len() after release = %d, want 0", s.Len())
	}
	if _, _, ok := s.Get(h.ID()); ok {
		t.Error("Get() should fail after release")
	}
}

func TestHandleIDsAreUnique(t *testing.T) {
	s := NewStore()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		h := s.Acquire(nil, "image/jpeg")
		if seen[h.ID()] {
			t.Fatalf("duplicate handle id %q", h.ID())
		}
		seen[h.ID()] = true
	}
}

func TestNilHandle(t *testing.T) {
	var h *Handle
	h.Release()
	if h.ID() != "" || h.URL() != "" {
		t.Error("nil handle should have empty id and url")
	}
}

func TestServeHTTP(t *testing.T) {
	s := NewStore()
	h := s.Acquire([]byte("jpegdata"), "image/jpeg")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"live handle", http.MethodGet, h.URL(), http.StatusOK},
		{"unknown handle", http.MethodGet, PathPrefix + "nope", http.StatusNotFound},
		{"wrong method", http.MethodPost, h.URL(), http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	h.Release()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, h.URL(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("released handle status = %d, want 404", rec.Code)
	}
}

func TestScopeReleasesUnkeptHandles(t *testing.T) {
	s := NewStore()
	kept := s.Acquire([]byte("a"), "image/png")
	dropped := s.Acquire([]byte("b"), "image/png")

	scope := NewScope()
	scope.Track(kept)
	scope.Track(dropped)
	scope.Keep(kept)
	scope.Close()

	if _, _, ok := s.Get(kept.ID()); !ok {
		t.Error("kept handle was released")
	}
	if _, _, ok := s.Get(dropped.ID()); ok {
		t.Error("dropped handle was not released")
	}
}
