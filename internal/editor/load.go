package editor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/cagpile/villagemap/internal/service"
)

// LoadAll fetches every file-backed layer concurrently and waits for all
// of them. Layers complete in any order; a failed layer stays empty (or
// sample-populated for households) while the rest load normally.
func (c *Controller) LoadAll(ctx context.Context, baseURL string) {
	var wg sync.WaitGroup
	for _, name := range service.LayerNames {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			// Errors are already reported to the user via the notifier.
			_ = c.LoadLayer(ctx, name, fmt.Sprintf("%s/api/%s", baseURL, name))
		}(name)
	}
	wg.Wait()
}

// LoadLayer fetches a layer's GeoJSON and populates its renderable group:
// one styled shape per feature, with popup and click-to-select wiring.
// On a non-2xx status or a parse failure the user is notified and, for the
// households layer only, a fixed set of sample features is substituted so
// the map is not empty.
func (c *Controller) LoadLayer(ctx context.Context, name, url string) error {
	fc, err := c.fetchCollection(ctx, url)
	if err != nil {
		c.notifier.Notify("error", fmt.Sprintf("Could not load %s: %v", name, err))
		if name == service.LayerHouseholds {
			c.populate(name, sampleHouseholds())
		}
		return err
	}

	c.populate(name, fc.Features)
	return nil
}

func (c *Controller) fetchCollection(ctx context.Context, url string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("parsing feature collection: %w", err)
	}
	return fc, nil
}

// populate replaces a group's contents with shapes for the given features.
// Replacing (rather than appending) keeps reloads idempotent. A selection
// in the replaced group is re-resolved by id against the new features, or
// cleared, so it never points at a feature outside every group.
func (c *Controller) populate(name string, features []*geojson.Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[name]
	if !ok {
		return
	}

	for _, e := range g.entries {
		c.surface.Remove(e.shape)
	}
	g.entries = g.entries[:0]

	for _, f := range features {
		f := f
		shape := c.surface.NewShape(f.Geometry)
		shape.ApplyStyle(c.styleFor(name, f))
		shape.BindPopup(c.popupHTML(name, f))
		shape.OnClick(func() { c.SelectFeature(f, shape, name) })
		if g.visible {
			c.surface.Add(shape)
		}
		g.entries = append(g.entries, &entry{feature: f, shape: shape})
	}

	if c.sel != nil && c.sel.layer == name {
		c.reselectLocked(g, service.FeatureID(c.sel.feature))
	}
}

// reselectLocked moves the selection onto the group entry carrying the
// given id, or clears it when the id is gone.
func (c *Controller) reselectLocked(g *Group, id string) {
	c.sel = nil
	if id == "" {
		return
	}
	for _, e := range g.entries {
		if service.FeatureID(e.feature) == id {
			c.selectLocked(e.feature, e.shape, g.name)
			return
		}
	}
}

// sampleHouseholds returns the fallback households shown when the API is
// unreachable, so the editor stays usable offline.
func sampleHouseholds() []*geojson.Feature {
	samples := []struct {
		id        int
		owner     string
		family    string
		residents int
		senior    string
		lon, lat  float64
	}{
		{101, "Juan Dela Cruz", "Dela Cruz", 5, "YES", 125.3185, 12.2392},
		{102, "Maria Santos", "Santos", 4, "NO", 125.3188, 12.2395},
		{103, "Pedro Reyes", "Reyes", 6, "YES", 125.3182, 12.2389},
	}

	features := make([]*geojson.Feature, 0, len(samples))
	for _, s := range samples {
		f := geojson.NewFeature(orb.Point{s.lon, s.lat})
		f.Properties["id"] = s.id
		f.Properties["Owner"] = s.owner
		f.Properties["Family nm"] = s.family
		f.Properties["Residents"] = s.residents
		f.Properties["senior/PWD"] = s.senior
		features = append(features, f)
	}
	return features
}
