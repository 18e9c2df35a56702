// Package editor contains the Datastar SSE handlers that expose the map
// editing controller to the browser UI.
package editor

import (
	"encoding/json"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"
)

// EmptyInput is a shared empty input struct for handlers with no parameters.
type EmptyInput struct{}

// SSE wraps the Datastar SSE generator with the patterns the editor
// handlers use: error/success signals and inner/outer element patching.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch sends HTML to replace inner content at a CSS selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
	)
}

// Replace replaces outer HTML at a CSS selector.
func (s SSE) Replace(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeOuter(),
	)
}

// Remove removes the element at a CSS selector.
func (s SSE) Remove(selector string) {
	s.PatchElements("",
		datastar.WithSelector(selector),
		datastar.WithModeRemove(),
	)
}

// Error sends an error signal to the UI.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Success sends a success signal to the UI.
func (s SSE) Success(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"success": msg})
}

// Signals sends arbitrary signals to the UI.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// DispatchCustomEvent fires a DOM CustomEvent in the browser so map-side
// scripts can react to controller changes.
func (s SSE) DispatchCustomEvent(name string, detail map[string]any) {
	payload, err := json.Marshal(detail)
	if err != nil {
		return
	}
	s.ExecuteScript(fmt.Sprintf(
		"window.dispatchEvent(new CustomEvent(%q, {detail: %s}))", name, payload))
}
