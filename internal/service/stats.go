package service

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// Stats summarizes the village data across all layers.
type Stats struct {
	TotalHouseholds      int            `json:"total_households" doc:"Number of household features"`
	TotalResidents       int            `json:"total_residents" doc:"Sum of the Residents property"`
	TotalFacilities      int            `json:"total_facilities" doc:"Number of facility features"`
	VulnerableHouseholds int            `json:"vulnerable_households" doc:"Households flagged senior/PWD"`
	PurokDistribution    map[string]int `json:"purok_distribution" doc:"Household count per purok"`
	FacilityTypes        map[string]int `json:"facility_types" doc:"Facility count per type"`
	RoadLengthMeters     float64        `json:"road_length_meters" doc:"Total road length in meters"`
	BoundaryAreaSqM      float64        `json:"boundary_area_sqm" doc:"Boundary area in square meters"`
}

// Statistics computes summary statistics over the loaded layers. Missing
// layers simply contribute nothing; the field conventions ("senior/PWD" ==
// YES, purok/Purok) follow the survey data as collected.
func Statistics(layers map[string]*geojson.FeatureCollection) Stats {
	stats := Stats{
		PurokDistribution: make(map[string]int),
		FacilityTypes:     make(map[string]int),
	}

	if hh := layers[LayerHouseholds]; hh != nil {
		stats.TotalHouseholds = len(hh.Features)
		for _, f := range hh.Features {
			stats.TotalResidents += propInt(f.Properties["Residents"])
			if flag, ok := f.Properties["senior/PWD"].(string); ok && strings.EqualFold(flag, "YES") {
				stats.VulnerableHouseholds++
			}
			purok := PropString(f.Properties["purok"])
			if purok == "" {
				purok = PropString(f.Properties["Purok"])
			}
			if purok != "" {
				stats.PurokDistribution[purok]++
			}
		}
	}

	if fac := layers[LayerFacilities]; fac != nil {
		stats.TotalFacilities = len(fac.Features)
		for _, f := range fac.Features {
			kind := PropString(f.Properties["Facility"])
			if kind == "" {
				kind = "Unknown"
			}
			stats.FacilityTypes[kind]++
		}
	}

	if roads := layers[LayerRoads]; roads != nil {
		for _, f := range roads.Features {
			stats.RoadLengthMeters += geo.Length(f.Geometry)
		}
	}

	if boundary := layers[LayerBoundary]; boundary != nil {
		for _, f := range boundary.Features {
			stats.BoundaryAreaSqM += geo.Area(f.Geometry)
		}
	}

	return stats
}

// propInt reads a numeric property that may arrive as a JSON number, an
// int, or a numeric string.
func propInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}
