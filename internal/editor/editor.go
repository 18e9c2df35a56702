// Package editor implements the map editing controller: it owns the
// renderable groups for each layer, the single selection, the draw-tool
// state machine and the attribute form bound to the selected feature.
//
// The map surface and the drawing toolkit are external collaborators; the
// controller only talks to them through the small interfaces below, so the
// same controller drives both the browser-facing editor and the tests.
package editor

import (
	"github.com/paulmach/orb"

	"github.com/cagpile/villagemap/internal/service"
)

// Tool is one of the editor's tool modes.
type Tool string

const (
	ToolSelect    Tool = "select"
	ToolEdit      Tool = "edit"
	ToolMarker    Tool = "marker"
	ToolPolygon   Tool = "polygon"
	ToolRectangle Tool = "rectangle"
	ToolPolyline  Tool = "polyline"
	ToolMove      Tool = "move"
	ToolDelete    Tool = "delete"
)

// drawTools are the tools that trigger the toolkit's draw mode.
var drawTools = map[Tool]bool{
	ToolMarker:    true,
	ToolPolygon:   true,
	ToolRectangle: true,
	ToolPolyline:  true,
}

// ModeKind is the controller's interaction state.
type ModeKind int

const (
	ModeIdle ModeKind = iota
	ModeDrawing
	ModeEditing
)

// Mode is the explicit draw-lifecycle state: Idle, Drawing(tool) while a
// draw tool is armed, or Editing while the toolkit's edit mode is active.
type Mode struct {
	Kind ModeKind
	Tool Tool // set while Kind == ModeDrawing
}

// Style is the shape style the controller applies.
type Style struct {
	Color       string  `json:"color"`       // stroke color
	Weight      float64 `json:"weight"`      // stroke width
	FillColor   string  `json:"fillColor"`   // fill color
	FillOpacity float64 `json:"fillOpacity"` // fill opacity (0-1)
}

// Shape is a drawable handle supplied by the map surface.
type Shape interface {
	ApplyStyle(Style)
	BindPopup(html string)
	OnClick(fn func())
}

// Surface is the map the controller draws on.
type Surface interface {
	// NewShape creates a drawable for a geometry, detached from the map.
	NewShape(geom orb.Geometry) Shape
	// Add attaches a shape to the map.
	Add(Shape)
	// Remove detaches a shape from the map.
	Remove(Shape)
}

// Toolkit is the external drawing toolkit. The controller never edits
// geometry itself; it only arms the toolkit and consumes its events.
type Toolkit interface {
	ShowToolbar()
	HideToolbar()
	StartDraw(Tool)
	EnableEdit()
	DisableEdit()
}

// Notifier shows a transient, user-visible notification.
type Notifier interface {
	Notify(level, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(level, message string)

func (f NotifierFunc) Notify(level, message string) { f(level, message) }

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(prompt string) bool

func (f ConfirmerFunc) Confirm(prompt string) bool { return f(prompt) }

// highlightStyle is the selection highlight: a thick red outline over the
// layer's fill.
func highlightStyle(base Style) Style {
	return Style{
		Color:       "#ff0000",
		Weight:      4,
		FillColor:   base.FillColor,
		FillOpacity: base.FillOpacity,
	}
}

// styleFromConfig builds a base style from a layer configuration.
func styleFromConfig(cfg service.LayerConfig) Style {
	return Style{
		Color:       cfg.Stroke,
		Weight:      cfg.Weight,
		FillColor:   cfg.Fill,
		FillOpacity: cfg.Opacity,
	}
}

// styleFromRule builds a style from a matched render rule, falling back to
// the layer base for unset fields.
func styleFromRule(rule service.RenderRule, base Style) Style {
	st := base
	if rule.Fill != "" {
		st.FillColor = rule.Fill
	}
	if rule.Stroke != "" {
		st.Color = rule.Stroke
	}
	if rule.Weight != 0 {
		st.Weight = rule.Weight
	}
	if rule.Opacity != 0 {
		st.FillOpacity = rule.Opacity
	}
	return st
}
