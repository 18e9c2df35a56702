package editor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/cagpile/villagemap/internal/service"
)

func layerServer(t *testing.T, status map[string]int, collections map[string]*geojson.FeatureCollection) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for _, name := range service.LayerNames {
		name := name
		mux.HandleFunc("/api/"+name, func(w http.ResponseWriter, r *http.Request) {
			if code, ok := status[name]; ok {
				http.Error(w, "unavailable", code)
				return
			}
			fc := collections[name]
			if fc == nil {
				fc = geojson.NewFeatureCollection()
			}
			data, err := fc.MarshalJSON()
			if err != nil {
				t.Errorf("marshal %s: %v", name, err)
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			w.Write(data)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pointFeature(id any, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{125.3185, 12.2392})
	f.Properties["id"] = id
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestLoadAllPopulatesEveryLayer(t *testing.T) {
	env := newTestEnv(t)

	collections := map[string]*geojson.FeatureCollection{
		service.LayerHouseholds: geojson.NewFeatureCollection().
			Append(pointFeature(1, map[string]any{"Owner": "Juan"})).
			Append(pointFeature(2, map[string]any{"Owner": "Maria", "senior/PWD": "YES"})),
		service.LayerFacilities: geojson.NewFeatureCollection().
			Append(pointFeature(10, map[string]any{"Facility": "Elementary School"})),
	}
	srv := layerServer(t, nil, collections)

	env.ctrl.LoadAll(context.Background(), srv.URL)

	counts := env.ctrl.GroupCounts()
	if counts[service.LayerHouseholds] != 2 {
		t.Fatalf("households count = %d, want 2", counts[service.LayerHouseholds])
	}
	if counts[service.LayerFacilities] != 1 {
		t.Fatalf("facilities count = %d, want 1", counts[service.LayerFacilities])
	}
	if counts[service.LayerRoads] != 0 || counts[service.LayerBoundary] != 0 {
		t.Fatalf("empty layers got features: %v", counts)
	}

	// Every loaded feature carries a styled, attached shape.
	g := env.ctrl.Group(service.LayerHouseholds)
	for _, e := range g.entries {
		s := e.shape.(*MemoryShape)
		if !env.surface.Attached(s) {
			t.Fatal("loaded shape not attached")
		}
		if s.Style().Color == "" {
			t.Fatal("loaded shape has no style")
		}
		if s.Popup() == "" {
			t.Fatal("loaded shape has no popup")
		}
	}

	// The vulnerable household gets the rule color, the other the base color.
	s1 := g.entries[0].shape.(*MemoryShape)
	s2 := g.entries[1].shape.(*MemoryShape)
	if s1.Style() == s2.Style() {
		t.Fatal("vulnerable household not recolored by the rule")
	}
}

func TestLoadHouseholdsFallsBackToSamples(t *testing.T) {
	env := newTestEnv(t)
	srv := layerServer(t, map[string]int{service.LayerHouseholds: http.StatusInternalServerError}, nil)

	env.ctrl.LoadAll(context.Background(), srv.URL)

	g := env.ctrl.Group(service.LayerHouseholds)
	var ids []string
	for _, f := range g.Features() {
		ids = append(ids, service.FeatureID(f))
	}
	sort.Strings(ids)
	want := []string{"101", "102", "103"}
	if len(ids) != len(want) {
		t.Fatalf("sample ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("sample ids = %v, want %v", ids, want)
		}
	}

	if env.noteCount() == 0 {
		t.Fatal("failed layer load produced no notification")
	}
}

func TestLoadOtherLayersStayEmptyOnFailure(t *testing.T) {
	env := newTestEnv(t)
	srv := layerServer(t, map[string]int{service.LayerRoads: http.StatusInternalServerError}, nil)

	env.ctrl.LoadAll(context.Background(), srv.URL)

	if got := env.ctrl.Group(service.LayerRoads).Len(); got != 0 {
		t.Fatalf("failed roads layer has %d features, want 0", got)
	}
}

func TestLoadLayerReplacesOnReload(t *testing.T) {
	env := newTestEnv(t)

	collections := map[string]*geojson.FeatureCollection{
		service.LayerFacilities: geojson.NewFeatureCollection().
			Append(pointFeature(1, map[string]any{"Facility": "Chapel"})),
	}
	srv := layerServer(t, nil, collections)
	url := srv.URL + "/api/" + service.LayerFacilities

	for i := 0; i < 3; i++ {
		if err := env.ctrl.LoadLayer(context.Background(), service.LayerFacilities, url); err != nil {
			t.Fatal(err)
		}
	}
	if got := env.ctrl.Group(service.LayerFacilities).Len(); got != 1 {
		t.Fatalf("facilities count after reloads = %d, want 1", got)
	}
	if got := env.surface.AttachedCount(); got != 1 {
		t.Fatalf("attached shapes after reloads = %d, want 1", got)
	}
}

func TestReloadRebindsSelectionByID(t *testing.T) {
	env := newTestEnv(t)
	f, s := env.addFeature(service.LayerHouseholds, 7, nil)
	env.ctrl.SelectFeature(f, s, service.LayerHouseholds)

	env.ctrl.populate(service.LayerHouseholds, []*geojson.Feature{
		pointFeature(7, map[string]any{"Owner": "Juan"}),
	})

	sel, layer := env.ctrl.Selected()
	if sel == nil || layer != service.LayerHouseholds {
		t.Fatalf("selection = (%v, %q), want household 7", sel, layer)
	}
	g := env.ctrl.Group(service.LayerHouseholds)
	if g.entries[0].feature != sel {
		t.Fatal("selection not rebound to the reloaded feature")
	}
	if got := g.entries[0].shape.(*MemoryShape).Style().Color; got != "#ff0000" {
		t.Fatalf("reloaded selection color = %q, want highlight", got)
	}
}

func TestReloadDropsSelectionWhenFeatureGone(t *testing.T) {
	env := newTestEnv(t)
	f, s := env.addFeature(service.LayerHouseholds, 7, nil)
	env.ctrl.SelectFeature(f, s, service.LayerHouseholds)

	env.ctrl.populate(service.LayerHouseholds, []*geojson.Feature{pointFeature(8, nil)})

	if sel, _ := env.ctrl.Selected(); sel != nil {
		t.Fatalf("selection survived reload without its feature: %v", sel)
	}
}

func TestReloadOtherLayerKeepsSelection(t *testing.T) {
	env := newTestEnv(t)
	f, s := env.addFeature(service.LayerHouseholds, 7, nil)
	env.ctrl.SelectFeature(f, s, service.LayerHouseholds)

	env.ctrl.populate(service.LayerFacilities, []*geojson.Feature{pointFeature(10, nil)})

	if sel, layer := env.ctrl.Selected(); sel != f || layer != service.LayerHouseholds {
		t.Fatalf("selection = (%v, %q), want untouched household 7", sel, layer)
	}
}

func TestLoadHiddenLayerStaysDetached(t *testing.T) {
	env := newTestEnv(t)
	env.ctrl.ToggleLayer(service.LayerBoundary, false)

	collections := map[string]*geojson.FeatureCollection{
		service.LayerBoundary: geojson.NewFeatureCollection().
			Append(pointFeature(1, nil)),
	}
	srv := layerServer(t, nil, collections)

	if err := env.ctrl.LoadLayer(context.Background(), service.LayerBoundary, srv.URL+"/api/"+service.LayerBoundary); err != nil {
		t.Fatal(err)
	}

	g := env.ctrl.Group(service.LayerBoundary)
	if g.Len() != 1 {
		t.Fatalf("boundary count = %d, want 1", g.Len())
	}
	if env.surface.Attached(g.entries[0].shape) {
		t.Fatal("hidden layer's shape attached to the surface")
	}
}
