package editor

import (
	"bytes"
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cagpile/villagemap/internal/editor"
	"github.com/cagpile/villagemap/internal/service"
	"github.com/cagpile/villagemap/internal/templates"
)

// Handler wires the map editing controller to the Datastar UI.
type Handler struct {
	ctrl     *editor.Controller
	renderer *templates.Renderer
	layers   map[string]service.LayerConfig
	bus      *service.EventBus
	center   *Center
	baseURL  string
}

// NewHandler creates the editor SSE handler set. baseURL is where the
// controller fetches its own layer endpoints from.
func NewHandler(ctrl *editor.Controller, renderer *templates.Renderer, layers map[string]service.LayerConfig, bus *service.EventBus, center *Center, baseURL string) *Handler {
	return &Handler{
		ctrl:     ctrl,
		renderer: renderer,
		layers:   layers,
		bus:      bus,
		center:   center,
		baseURL:  baseURL,
	}
}

// RegisterRoutes registers the editor SSE routes with Huma.
func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/init", h.Init, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/editor/panel", h.Panel, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/editor/layers", h.Layers, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/editor/events", h.Events, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/tool", h.SetTool, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/layers/{name}/toggle", h.ToggleLayer, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/select", h.Select, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/deselect", h.Deselect, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/attributes/save", h.SaveAttributes, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/feature/delete", h.DeleteFeature, huma.OperationTags("editor"))
}

func (h *Handler) stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// Init loads every layer into the controller and pushes the initial UI
// state. The browser calls this once when the editor page opens.
func (h *Handler) Init(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return h.stream(func(sse SSE) {
		h.ctrl.LoadAll(ctx, h.baseURL)
		sse.Patch(h.renderLayerList(), "#layer-list")
		sse.Patch(h.ctrl.AttributePanelHTML(), "#attribute-container")
		sse.Signals(h.stateSignals())
	}), nil
}

// Panel re-renders the attribute panel for the current selection.
func (h *Handler) Panel(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return h.stream(func(sse SSE) {
		sse.Patch(h.ctrl.AttributePanelHTML(), "#attribute-container")
	}), nil
}

// Layers re-renders the layer checkbox list.
func (h *Handler) Layers(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return h.stream(func(sse SSE) {
		sse.Patch(h.renderLayerList(), "#layer-list")
	}), nil
}

// SetTool switches the active tool from the toolbar buttons.
func (h *Handler) SetTool(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	tool := editor.Tool(signals.String("tool"))
	if tool == "" {
		return nil, huma.Error400BadRequest("tool is required")
	}

	return h.stream(func(sse SSE) {
		h.ctrl.SetActiveTool(tool)
		// delete acts on the selection, so the panel may have changed
		sse.Patch(h.ctrl.AttributePanelHTML(), "#attribute-container")
		sse.Signals(h.stateSignals())
	}), nil
}

type ToggleInput struct {
	Name string `path:"name" doc:"Layer name to toggle"`
}

// ToggleLayer flips a layer's visibility.
func (h *Handler) ToggleLayer(ctx context.Context, input *ToggleInput) (*huma.StreamResponse, error) {
	if _, _, ok := h.ctrl.LayerState(input.Name); !ok {
		return nil, huma.Error404NotFound("layer not found")
	}

	return h.stream(func(sse SSE) {
		visible, _ := h.ctrl.FlipLayer(input.Name)
		sse.Patch(h.renderLayerList(), "#layer-list")
		sse.Signals(h.stateSignals())
		sse.DispatchCustomEvent("layer-toggled", map[string]any{
			"layer": input.Name, "visible": visible,
		})
	}), nil
}

// Select selects a feature by layer and id, as reported by a map click.
func (h *Handler) Select(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	layer := signals.String("layer")
	featureID := signals.String("featureid")

	return h.stream(func(sse SSE) {
		if !h.ctrl.SelectByID(layer, featureID) {
			sse.Error("Feature not found: " + featureID)
			return
		}
		sse.Patch(h.ctrl.AttributePanelHTML(), "#attribute-container")
		sse.Signals(h.stateSignals())
	}), nil
}

// Deselect clears the selection, e.g. on a background-map click.
func (h *Handler) Deselect(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return h.stream(func(sse SSE) {
		h.ctrl.DeselectFeature()
		sse.Patch(h.ctrl.AttributePanelHTML(), "#attribute-container")
		sse.Signals(h.stateSignals())
	}), nil
}

// SaveAttributes merges the posted attr_* signals into the selected
// feature's properties.
func (h *Handler) SaveAttributes(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	values := signals.Strings("attr_")

	return h.stream(func(sse SSE) {
		if !h.ctrl.SaveAttributes(values) {
			sse.Error("No feature selected")
			return
		}
		sse.Patch(h.ctrl.AttributePanelHTML(), "#attribute-container")
		sse.Success("Attributes saved")
	}), nil
}

// DeleteFeature deletes the selected feature. The browser has already
// confirmed with the user before posting here.
func (h *Handler) DeleteFeature(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return h.stream(func(sse SSE) {
		if !h.ctrl.DeleteSelected() {
			sse.Error("No feature selected")
			return
		}
		sse.Patch(h.ctrl.AttributePanelHTML(), "#attribute-container")
		sse.Patch(h.renderLayerList(), "#layer-list")
		sse.Signals(h.stateSignals())
	}), nil
}

// Events streams feature mutations and transient notifications to the UI.
func (h *Handler) Events(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return h.stream(func(sse SSE) {
		events := h.bus.Subscribe()
		defer h.bus.Unsubscribe(events)
		notes := h.center.Subscribe()
		defer h.center.Unsubscribe(notes)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				sse.Patch(h.renderLayerList(), "#layer-list")
				sse.DispatchCustomEvent("feature-changed", map[string]any{
					"layer": ev.Layer, "action": ev.Action, "id": ev.FeatureID,
				})
			case n := <-notes:
				if n.Cleared {
					sse.Patch("", "#notifications")
					continue
				}
				html := h.renderer.MustRender("notification", n.Notification)
				sse.Patch(html, "#notifications")
			}
		}
	}), nil
}

// stateSignals snapshots the controller state the toolbar and counters bind to.
func (h *Handler) stateSignals() map[string]any {
	counts := h.ctrl.GroupCounts()
	selectedID := ""
	selectedCount := 0
	if f, _ := h.ctrl.Selected(); f != nil {
		selectedID = service.FeatureID(f)
		selectedCount = 1
	}

	signals := map[string]any{
		"activetool":    string(h.ctrl.ActiveTool()),
		"currentlayer":  h.ctrl.CurrentLayer(),
		"selectedid":    selectedID,
		"selectedcount": selectedCount,
	}
	for name, n := range counts {
		signals["count_"+name] = n
	}
	return signals
}

type layerItem struct {
	Name    string
	Title   string
	Color   string
	Count   int
	Visible bool
}

func (h *Handler) renderLayerList() string {
	var buf bytes.Buffer
	names := append(append([]string{}, service.LayerNames...), service.LayerDrawn)
	for _, name := range names {
		count, visible, ok := h.ctrl.LayerState(name)
		if !ok {
			continue
		}
		cfg := h.layers[name]
		color := cfg.Fill
		if color == "" {
			color = cfg.Stroke
		}
		h.renderer.RenderToBuffer(&buf, "layer-item", layerItem{
			Name:    name,
			Title:   cfg.Title,
			Color:   color,
			Count:   count,
			Visible: visible,
		})
	}
	if buf.Len() == 0 {
		h.renderer.RenderToBuffer(&buf, "empty-state", map[string]string{
			"Title": "No layers", "Message": "No layer groups are configured",
		})
	}
	return buf.String()
}
