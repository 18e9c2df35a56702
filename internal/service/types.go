// Package service contains the domain logic for the village mapping system.
package service

import "strings"

// The closed set of layer names served by the system. Drawn holds shapes
// created interactively in the editor and has no backing file.
const (
	LayerHouseholds = "households"
	LayerFacilities = "facilities"
	LayerRoads      = "roads"
	LayerBoundary   = "boundary"
	LayerDrawn      = "drawn"
)

// LayerNames lists the layers backed by GeoJSON files, in load order.
var LayerNames = []string{LayerHouseholds, LayerFacilities, LayerRoads, LayerBoundary}

// LayerConfig describes how a layer is displayed.
type LayerConfig struct {
	Name        string       `json:"name" doc:"Layer name" example:"households"`
	Title       string       `json:"title" doc:"Display title" example:"Households"`
	GeomType    string       `json:"geomType" enum:"point,line,polygon" doc:"Geometry type"`
	Fill        string       `json:"fill,omitempty" doc:"Fill color (CSS)" example:"#3388ff"`
	Stroke      string       `json:"stroke,omitempty" doc:"Stroke color (CSS)" example:"#2266cc"`
	Weight      float64      `json:"weight,omitempty" doc:"Stroke width"`
	Opacity     float64      `json:"opacity,omitempty" minimum:"0" maximum:"1" doc:"Layer opacity (0-1)"`
	RenderRules []RenderRule `json:"renderRules,omitempty" doc:"Conditional styling rules"`
	Legend      []LegendItem `json:"legend,omitempty" doc:"Legend entries for this layer"`
}

// RenderRule recolors features whose property matches a value. Substring
// rules match case-insensitively anywhere in the property value, which is
// how facility types are colored (e.g. "school" in "Elementary School").
type RenderRule struct {
	FilterProp  string  `json:"filterProp" doc:"Property name to filter on"`
	FilterValue string  `json:"filterValue" doc:"Value to match"`
	Substring   bool    `json:"substring,omitempty" doc:"Match as substring instead of equality"`
	Fill        string  `json:"fill" doc:"Fill color (CSS)"`
	Stroke      string  `json:"stroke,omitempty" doc:"Stroke color (CSS)"`
	Weight      float64 `json:"weight,omitempty" doc:"Stroke width"`
	Opacity     float64 `json:"opacity,omitempty" doc:"Opacity (0-1)"`
}

// LegendItem defines a legend entry.
type LegendItem struct {
	Label string `json:"label" doc:"Legend label"`
	Color string `json:"color" doc:"Legend color (CSS)"`
}

// Matches reports whether the rule applies to the given property value.
func (r RenderRule) Matches(value string) bool {
	if r.Substring {
		return strings.Contains(strings.ToLower(value), strings.ToLower(r.FilterValue))
	}
	return strings.EqualFold(value, r.FilterValue)
}

// Rule returns the first render rule matching the feature's properties,
// or false if the layer's base style applies.
func (c LayerConfig) Rule(props map[string]any) (RenderRule, bool) {
	for _, rule := range c.RenderRules {
		v, ok := props[rule.FilterProp]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && rule.Matches(s) {
			return rule, true
		}
	}
	return RenderRule{}, false
}

// DefaultLayers returns the built-in layer configurations for the village.
// Households are recolored when the senior/PWD flag marks the household as
// vulnerable; facilities are colored by facility type.
func DefaultLayers() map[string]LayerConfig {
	return map[string]LayerConfig{
		LayerHouseholds: {
			Name:     LayerHouseholds,
			Title:    "Households",
			GeomType: "point",
			Fill:     "#3388ff",
			Stroke:   "#2266cc",
			Weight:   1,
			Opacity:  0.8,
			RenderRules: []RenderRule{
				{FilterProp: "senior/PWD", FilterValue: "YES", Fill: "#e74c3c", Stroke: "#c0392b", Weight: 1, Opacity: 0.9},
			},
			Legend: []LegendItem{
				{Label: "Household", Color: "#3388ff"},
				{Label: "Vulnerable (senior/PWD)", Color: "#e74c3c"},
			},
		},
		LayerFacilities: {
			Name:     LayerFacilities,
			Title:    "Facilities",
			GeomType: "point",
			Fill:     "#9b59b6",
			Stroke:   "#8e44ad",
			Weight:   1,
			Opacity:  0.9,
			RenderRules: []RenderRule{
				{FilterProp: "Facility", FilterValue: "school", Substring: true, Fill: "#f1c40f", Stroke: "#d4ac0d", Weight: 1, Opacity: 0.9},
				{FilterProp: "Facility", FilterValue: "health", Substring: true, Fill: "#2ecc71", Stroke: "#27ae60", Weight: 1, Opacity: 0.9},
				{FilterProp: "Facility", FilterValue: "chapel", Substring: true, Fill: "#ecf0f1", Stroke: "#95a5a6", Weight: 1, Opacity: 0.9},
			},
			Legend: []LegendItem{
				{Label: "Facility", Color: "#9b59b6"},
				{Label: "School", Color: "#f1c40f"},
				{Label: "Health center", Color: "#2ecc71"},
			},
		},
		LayerRoads: {
			Name:     LayerRoads,
			Title:    "Roads",
			GeomType: "line",
			Stroke:   "#7f8c8d",
			Weight:   3,
			Opacity:  0.9,
			Legend:   []LegendItem{{Label: "Road", Color: "#7f8c8d"}},
		},
		LayerBoundary: {
			Name:     LayerBoundary,
			Title:    "Boundary",
			GeomType: "polygon",
			Fill:     "#2c3e50",
			Stroke:   "#2c3e50",
			Weight:   2,
			Opacity:  0.1,
			Legend:   []LegendItem{{Label: "Barangay boundary", Color: "#2c3e50"}},
		},
		LayerDrawn: {
			Name:     LayerDrawn,
			Title:    "Drawn features",
			GeomType: "point",
			Fill:     "#e67e22",
			Stroke:   "#d35400",
			Weight:   1,
			Opacity:  0.9,
			Legend:   []LegendItem{{Label: "Drawn feature", Color: "#e67e22"}},
		},
	}
}

// MapConfig holds the initial map view.
type MapConfig struct {
	CenterLat float64 `json:"centerLat" doc:"Initial map center latitude"`
	CenterLon float64 `json:"centerLon" doc:"Initial map center longitude"`
	Zoom      int     `json:"zoom" doc:"Initial zoom level"`
	MinZoom   int     `json:"minZoom" doc:"Minimum zoom level"`
	MaxZoom   int     `json:"maxZoom" doc:"Maximum zoom level"`
	TileURL   string  `json:"tileUrl" doc:"Base tile source URL template"`
}

// DefaultMapConfig centers the map on Barangay Cagpile, Oras, Eastern Samar.
func DefaultMapConfig() MapConfig {
	return MapConfig{
		CenterLat: 12.2392,
		CenterLon: 125.3185,
		Zoom:      16,
		MinZoom:   12,
		MaxZoom:   20,
		TileURL:   "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
	}
}
