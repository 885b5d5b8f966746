package preview

// Releaser is anything that owns a preview handle.
type Releaser interface {
	Release()
}

// Scope releases every tracked resource on Close unless it was kept.
//
//	scope := preview.NewScope()
//	defer scope.Close()
//	img := acquire()
//	scope.Track(img)
//	...
//	scope.Keep(img) // ownership moved to the caller
type Scope struct {
	tracked []Releaser
	kept    map[Releaser]bool
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{kept: make(map[Releaser]bool)}
}

// Track adds r to the scope.
func (s *Scope) Track(r Releaser) {
	if r != nil {
		s.tracked = append(s.tracked, r)
	}
}

// Keep marks r as transferred out of the scope; Close will not release it.
func (s *Scope) Keep(r Releaser) {
	s.kept[r] = true
}

// Close releases all tracked resources that were not kept.
func (s *Scope) Close() {
	for _, r := range s.tracked {
		if !s.kept[r] {
			r.Release()
		}
	}
	s.tracked = nil
}
