package editor

import (
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/cagpile/villagemap/internal/service"
)

// FormField is one attribute-form input bound to a feature property.
// Key is the property name as stored; ID is the sanitized form identifier
// the browser posts values under.
type FormField struct {
	Key   string
	ID    string
	Label string
	Value string
}

// FieldsFor returns the attribute form fields for a layer's features.
// Households and drawn features expose the full household form; facilities
// expose the facility name; other layers get a generic name field.
func FieldsFor(layer string, f *geojson.Feature) []FormField {
	var fields []FormField
	switch layer {
	case service.LayerHouseholds, service.LayerDrawn:
		fields = []FormField{
			{Key: "id", Label: "Household ID"},
			{Key: "Owner", Label: "Owner"},
			{Key: "Family nm", Label: "Family Name"},
			{Key: "Residents", Label: "Residents"},
		}
	case service.LayerFacilities:
		fields = []FormField{
			{Key: "Facility", Label: "Facility Name"},
		}
	default:
		fields = []FormField{
			{Key: "name", Label: "Name"},
		}
	}

	for i := range fields {
		fields[i].ID = fieldID(fields[i].Key)
		if f != nil {
			fields[i].Value = service.PropString(f.Properties[fields[i].Key])
		}
	}
	return fields
}

// fieldID derives a form-safe identifier from a property key
// ("Family nm" -> "family_nm", "senior/PWD" -> "senior_pwd").
func fieldID(key string) string {
	id := strings.ToLower(key)
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// AttributePanelHTML renders the attribute form for the selection, or the
// no-selection placeholder.
func (c *Controller) AttributePanelHTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sel == nil {
		return c.renderer.MustRender("no-selection", nil)
	}
	cfg := c.layers[c.sel.layer]
	return c.renderer.MustRender("attribute-form", map[string]any{
		"Title":  cfg.Title,
		"Layer":  c.sel.layer,
		"Fields": FieldsFor(c.sel.layer, c.sel.feature),
	})
}
