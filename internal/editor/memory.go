package editor

import (
	"sync"

	"github.com/paulmach/orb"
)

// MemoryShape is an in-memory Shape. It records the style and popup the
// controller applied and can replay a click, standing in for a browser-side
// drawable in the server and in tests.
type MemoryShape struct {
	mu      sync.Mutex
	geom    orb.Geometry
	style   Style
	popup   string
	onClick func()
}

// NewMemoryShape creates a detached shape for a geometry.
func NewMemoryShape(geom orb.Geometry) *MemoryShape {
	return &MemoryShape{geom: geom}
}

func (s *MemoryShape) ApplyStyle(st Style) {
	s.mu.Lock()
	s.style = st
	s.mu.Unlock()
}

func (s *MemoryShape) BindPopup(html string) {
	s.mu.Lock()
	s.popup = html
	s.mu.Unlock()
}

func (s *MemoryShape) OnClick(fn func()) {
	s.mu.Lock()
	s.onClick = fn
	s.mu.Unlock()
}

// Style returns the last style applied.
func (s *MemoryShape) Style() Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// Popup returns the current popup HTML.
func (s *MemoryShape) Popup() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popup
}

// Geometry returns the shape's geometry.
func (s *MemoryShape) Geometry() orb.Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geom
}

// Click invokes the registered click handler, simulating a feature click.
func (s *MemoryShape) Click() {
	s.mu.Lock()
	fn := s.onClick
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// MemorySurface is an in-memory map surface tracking which shapes are
// attached.
type MemorySurface struct {
	mu       sync.Mutex
	attached map[Shape]struct{}
}

// NewMemorySurface creates an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{attached: make(map[Shape]struct{})}
}

func (m *MemorySurface) NewShape(geom orb.Geometry) Shape {
	return NewMemoryShape(geom)
}

func (m *MemorySurface) Add(s Shape) {
	m.mu.Lock()
	m.attached[s] = struct{}{}
	m.mu.Unlock()
}

func (m *MemorySurface) Remove(s Shape) {
	m.mu.Lock()
	delete(m.attached, s)
	m.mu.Unlock()
}

// Attached reports whether a shape is currently on the map.
func (m *MemorySurface) Attached(s Shape) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.attached[s]
	return ok
}

// AttachedCount returns the number of shapes on the map.
func (m *MemorySurface) AttachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attached)
}

// MemoryToolkit records the drawing toolkit state the controller requested.
type MemoryToolkit struct {
	mu             sync.Mutex
	ToolbarVisible bool
	EditMode       bool
	LastDraw       Tool
}

func (t *MemoryToolkit) ShowToolbar() {
	t.mu.Lock()
	t.ToolbarVisible = true
	t.mu.Unlock()
}

func (t *MemoryToolkit) HideToolbar() {
	t.mu.Lock()
	t.ToolbarVisible = false
	t.mu.Unlock()
}

func (t *MemoryToolkit) StartDraw(tool Tool) {
	t.mu.Lock()
	t.LastDraw = tool
	t.mu.Unlock()
}

func (t *MemoryToolkit) EnableEdit() {
	t.mu.Lock()
	t.EditMode = true
	t.mu.Unlock()
}

func (t *MemoryToolkit) DisableEdit() {
	t.mu.Lock()
	t.EditMode = false
	t.mu.Unlock()
}
