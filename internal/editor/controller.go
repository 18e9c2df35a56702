package editor

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/cagpile/villagemap/internal/service"
	"github.com/cagpile/villagemap/internal/templates"
)

// entry is one (feature, shape) pair in a renderable group.
type entry struct {
	feature *geojson.Feature
	shape   Shape
}

// Group is the unordered collection of feature/shape pairs shown on the
// map for one layer. A feature belongs to exactly one group at a time.
type Group struct {
	name    string
	entries []*entry
	visible bool
}

// Len returns the number of features in the group.
func (g *Group) Len() int { return len(g.entries) }

// Visible reports whether the group is attached to the map.
func (g *Group) Visible() bool { return g.visible }

// Features returns the group's features. The slice is a copy; the features
// are the live objects.
func (g *Group) Features() []*geojson.Feature {
	out := make([]*geojson.Feature, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.feature
	}
	return out
}

func (g *Group) remove(e *entry) {
	for i, cur := range g.entries {
		if cur == e {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return
		}
	}
}

func (g *Group) findShape(s Shape) *entry {
	for _, e := range g.entries {
		if e.shape == s {
			return e
		}
	}
	return nil
}

// selection is the single highlighted feature, if any.
type selection struct {
	feature *geojson.Feature
	shape   Shape
	layer   string
}

// Config wires the controller to its collaborators.
type Config struct {
	Surface   Surface
	Toolkit   Toolkit
	Notifier  Notifier
	Confirmer Confirmer
	Renderer  *templates.Renderer
	Client    *http.Client                   // layer fetches; defaults to http.DefaultClient
	Layers    map[string]service.LayerConfig // defaults to service.DefaultLayers()
}

// Controller is the map editing controller. All state mutation happens
// under one lock; collaborators may call in from any goroutine.
type Controller struct {
	mu        sync.Mutex
	surface   Surface
	toolkit   Toolkit
	notifier  Notifier
	confirmer Confirmer
	renderer  *templates.Renderer
	client    *http.Client

	layers       map[string]service.LayerConfig
	groups       map[string]*Group
	mode         Mode
	tool         Tool
	currentLayer string
	sel          *selection
	now          func() time.Time
}

// New creates a controller with one empty, visible group per layer plus
// the drawn-items group.
func New(cfg Config) *Controller {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Layers == nil {
		cfg.Layers = service.DefaultLayers()
	}

	groups := make(map[string]*Group, len(service.LayerNames)+1)
	for _, name := range service.LayerNames {
		groups[name] = &Group{name: name, visible: true}
	}
	groups[service.LayerDrawn] = &Group{name: service.LayerDrawn, visible: true}

	return &Controller{
		surface:      cfg.Surface,
		toolkit:      cfg.Toolkit,
		notifier:     cfg.Notifier,
		confirmer:    cfg.Confirmer,
		renderer:     cfg.Renderer,
		client:       cfg.Client,
		layers:       cfg.Layers,
		groups:       groups,
		tool:         ToolSelect,
		currentLayer: service.LayerHouseholds,
		now:          time.Now,
	}
}

// Group returns the renderable group for a layer, or nil for unknown names.
// The group's accessors are not synchronized; concurrent callers wanting a
// consistent snapshot use LayerState instead.
func (c *Controller) Group(name string) *Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups[name]
}

// LayerState reports a layer's feature count and visibility in one locked
// read. ok is false for unknown layer names.
func (c *Controller) LayerState(name string) (count int, visible bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[name]
	if !ok {
		return 0, false, false
	}
	return len(g.entries), g.visible, true
}

// GroupCounts returns the feature count per layer.
func (c *Controller) GroupCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]int, len(c.groups))
	for name, g := range c.groups {
		counts[name] = g.Len()
	}
	return counts
}

// ActiveTool returns the current tool.
func (c *Controller) ActiveTool() Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tool
}

// Mode returns the current interaction mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// CurrentLayer returns the default target layer for new drawings.
func (c *Controller) CurrentLayer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLayer
}

// Selected returns the selected feature and its layer, or nil.
func (c *Controller) Selected() (*geojson.Feature, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sel == nil {
		return nil, ""
	}
	return c.sel.feature, c.sel.layer
}

// SetActiveTool switches tools: hides the drawing toolbar, leaves any
// drawing/editing mode, then arms the new tool.
func (c *Controller) SetActiveTool(tool Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.toolkit.HideToolbar()
	if c.mode.Kind == ModeEditing {
		c.toolkit.DisableEdit()
	}
	c.mode = Mode{Kind: ModeIdle}
	c.tool = tool

	switch {
	case tool == ToolEdit:
		// No-op when there is nothing to edit.
		if c.groups[service.LayerDrawn].Len() > 0 {
			c.toolkit.EnableEdit()
			c.mode = Mode{Kind: ModeEditing}
		}
	case drawTools[tool]:
		c.toolkit.ShowToolbar()
		c.toolkit.StartDraw(tool)
		c.mode = Mode{Kind: ModeDrawing, Tool: tool}
	case tool == ToolDelete:
		c.deleteSelectedLocked()
	default:
		// select and move are passive modes.
	}
}

// ToggleLayer attaches or detaches a layer's shapes. Turning a layer on
// makes it the current layer, the default target for new drawings.
func (c *Controller) ToggleLayer(name string, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[name]
	if !ok {
		return
	}
	c.toggleLocked(g, visible)
}

// FlipLayer inverts a layer's visibility in one locked step and reports the
// new state. Handlers use this instead of read-then-toggle so two
// concurrent requests cannot land on the same target state.
func (c *Controller) FlipLayer(name string) (visible bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[name]
	if !ok {
		return false, false
	}
	c.toggleLocked(g, !g.visible)
	return g.visible, true
}

func (c *Controller) toggleLocked(g *Group, visible bool) {
	if g.visible == visible {
		return
	}
	for _, e := range g.entries {
		if visible {
			c.surface.Add(e.shape)
		} else {
			c.surface.Remove(e.shape)
		}
	}
	g.visible = visible
	if visible {
		c.currentLayer = g.name
	}
}

// SelectFeature highlights a feature, restoring the previous selection's
// layer style first so at most one feature is ever highlighted.
func (c *Controller) SelectFeature(f *geojson.Feature, shape Shape, layer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectLocked(f, shape, layer)
}

func (c *Controller) selectLocked(f *geojson.Feature, shape Shape, layer string) {
	c.restoreSelectionStyle()
	shape.ApplyStyle(highlightStyle(c.styleFor(layer, f)))
	c.sel = &selection{feature: f, shape: shape, layer: layer}
}

// SelectByID selects the feature with the given id within a layer's group.
// This is how a browser click, which only knows the layer and feature id,
// reaches the controller. Returns false if no such feature is loaded.
func (c *Controller) SelectByID(layer, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[layer]
	if !ok || id == "" {
		return false
	}
	for _, e := range g.entries {
		if service.FeatureID(e.feature) == id {
			c.selectLocked(e.feature, e.shape, layer)
			return true
		}
	}
	return false
}

// DeselectFeature clears the selection, restoring its layer style.
func (c *Controller) DeselectFeature() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restoreSelectionStyle()
	c.sel = nil
}

func (c *Controller) restoreSelectionStyle() {
	if c.sel != nil {
		c.sel.shape.ApplyStyle(c.styleFor(c.sel.layer, c.sel.feature))
	}
}

// SaveAttributes merges form values into the selected feature's properties
// and refreshes its popup. Edits are in-memory only; persistence happens
// through the write API, not the controller. Returns false with no
// selection.
func (c *Controller) SaveAttributes(values map[string]string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sel == nil {
		return false
	}
	for _, field := range FieldsFor(c.sel.layer, c.sel.feature) {
		if v, ok := values[field.ID]; ok {
			c.sel.feature.Properties[field.Key] = v
		}
	}
	c.sel.shape.BindPopup(c.popupHTML(c.sel.layer, c.sel.feature))
	c.notifier.Notify("success", "Attributes saved")
	return true
}

// DeleteSelected removes the selected feature after confirmation. Without
// confirmation the feature stays untouched. Returns true if deleted.
func (c *Controller) DeleteSelected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteSelectedLocked()
}

func (c *Controller) deleteSelectedLocked() bool {
	if c.sel == nil {
		return false
	}
	if !c.confirmer.Confirm("Delete the selected feature?") {
		return false
	}

	sel := c.sel
	c.surface.Remove(sel.shape)
	for _, g := range c.groups {
		if e := g.findShape(sel.shape); e != nil {
			g.remove(e)
		}
	}
	c.sel = nil
	c.notifier.Notify("success", "Feature deleted")
	return true
}

// DrawCreated handles the toolkit's shape-created event: a feature is
// synthesized with defaults for the current layer, the shape joins the
// drawn-items group, becomes the selection, and the tool reverts to select.
func (c *Controller) DrawCreated(shape Shape, geom orb.Geometry) *geojson.Feature {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := geojson.NewFeature(geom)
	for k, v := range c.defaultProperties() {
		f.Properties[k] = v
	}

	layer := service.LayerDrawn
	shape.ApplyStyle(c.styleFor(layer, f))
	shape.BindPopup(c.popupHTML(c.currentLayer, f))
	shape.OnClick(func() { c.SelectFeature(f, shape, layer) })
	c.surface.Add(shape)

	g := c.groups[layer]
	g.entries = append(g.entries, &entry{feature: f, shape: shape})

	c.selectLocked(f, shape, layer)

	c.toolkit.HideToolbar()
	c.mode = Mode{Kind: ModeIdle}
	c.tool = ToolSelect
	c.notifier.Notify("success", "Feature created")
	return f
}

// DrawEdited handles the toolkit's shape-edited event. The toolkit already
// moved the shape; the new geometry is copied back into the feature so the
// two never diverge.
func (c *Controller) DrawEdited(shape Shape, geom orb.Geometry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, g := range c.groups {
		if e := g.findShape(shape); e != nil {
			e.feature.Geometry = geom
			break
		}
	}
	c.notifier.Notify("info", "Changes saved")
}

// DrawDeleted handles the toolkit's shapes-deleted event: the given shapes
// leave the drawn-items group, the selection is cleared and the user is
// notified.
func (c *Controller) DrawDeleted(shapes ...Shape) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.groups[service.LayerDrawn]
	for _, s := range shapes {
		if e := g.findShape(s); e != nil {
			g.remove(e)
		}
	}
	c.restoreSelectionStyle()
	c.sel = nil
	c.notifier.Notify("info", "Features deleted")
}

// defaultProperties synthesizes properties for a newly drawn feature:
// a timestamp-derived id and placeholder name fields for the current layer.
func (c *Controller) defaultProperties() map[string]any {
	id := c.now().UnixMilli()
	switch c.currentLayer {
	case service.LayerHouseholds, service.LayerDrawn:
		return map[string]any{
			"id":         id,
			"Owner":      "New Owner",
			"Family nm":  "New Family",
			"Residents":  1,
			"senior/PWD": "NO",
		}
	case service.LayerFacilities:
		return map[string]any{
			"id":       id,
			"Facility": "New Facility",
		}
	default:
		return map[string]any{
			"id":   id,
			"name": "New Feature",
		}
	}
}

// styleFor resolves a feature's style from its layer's color rules.
func (c *Controller) styleFor(layer string, f *geojson.Feature) Style {
	cfg := c.layers[layer]
	base := styleFromConfig(cfg)
	if rule, ok := cfg.Rule(f.Properties); ok {
		return styleFromRule(rule, base)
	}
	return base
}

// popupHTML renders the per-layer popup template over the feature's
// properties, falling back to the generic template.
func (c *Controller) popupHTML(layer string, f *geojson.Feature) string {
	cfg := c.layers[layer]
	title := cfg.Title
	if id := service.FeatureID(f); id != "" {
		title = fmt.Sprintf("%s %s", cfg.Title, id)
	}

	props := make(map[string]string, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = service.PropString(v)
	}
	data := map[string]any{
		"Title": title,
		"ID":    service.FeatureID(f),
		"Props": props,
	}

	if html, err := c.renderer.Render("popup-"+layer, data); err == nil {
		return html
	}
	return c.renderer.MustRender("popup-default", data)
}
