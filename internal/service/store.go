package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// layerFiles maps layer names to their backing GeoJSON files.
var layerFiles = map[string]string{
	LayerHouseholds: "Cagpile_Households.geojson",
	LayerFacilities: "Cagpile_Facilities.geojson",
	LayerRoads:      "Cagpile_Road.geojson",
	LayerBoundary:   "Cagpile_Boundary.geojson",
}

// FeatureStore persists layer feature collections as GeoJSON files in the
// data directory. All mutations write through to disk.
type FeatureStore struct {
	dataDir string
	bus     *EventBus
	mu      sync.Mutex
}

// NewFeatureStore creates a store rooted at dataDir, creating it if needed.
// Mutations are announced on bus when it is non-nil.
func NewFeatureStore(dataDir string, bus *EventBus) (*FeatureStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FeatureStore{dataDir: dataDir, bus: bus}, nil
}

// DataDir returns the store's data directory.
func (s *FeatureStore) DataDir() string {
	return s.dataDir
}

// fileFor returns the backing file path for a layer, or an error for
// unknown layers (drawn features are never persisted).
func (s *FeatureStore) fileFor(layer string) (string, error) {
	name, ok := layerFiles[layer]
	if !ok {
		return "", fmt.Errorf("layer %q not found", layer)
	}
	return filepath.Join(s.dataDir, name), nil
}

// Load reads a layer's feature collection. A missing file yields an empty
// collection so a fresh data directory still serves every layer.
func (s *FeatureStore) Load(layer string) (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(layer)
}

func (s *FeatureStore) loadLocked(layer string) (*geojson.FeatureCollection, error) {
	path, err := s.fileFor(layer)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return geojson.NewFeatureCollection(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return fc, nil
}

// saveLocked writes a layer's feature collection to disk. The caller holds
// s.mu; the write goes through a temp file and rename so a reader never
// sees a half-written file.
func (s *FeatureStore) saveLocked(layer string, fc *geojson.FeatureCollection) error {
	path, err := s.fileFor(layer)
	if err != nil {
		return err
	}

	// Indented so the files stay hand-editable.
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", layer, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// UpdateFeature merges props into the identified feature's properties and,
// when geom is non-nil, replaces its geometry.
func (s *FeatureStore) UpdateFeature(layer, featureID string, props map[string]any, geom orb.Geometry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc, err := s.loadLocked(layer)
	if err != nil {
		return err
	}

	for _, f := range fc.Features {
		if FeatureID(f) != featureID {
			continue
		}
		for k, v := range props {
			f.Properties[k] = v
		}
		if geom != nil {
			f.Geometry = geom
		}
		if err := s.saveLocked(layer, fc); err != nil {
			return err
		}
		s.publish(layer, "updated", featureID)
		return nil
	}
	return fmt.Errorf("feature %s not found in %s", featureID, layer)
}

// DeleteFeature removes the identified feature from the layer.
func (s *FeatureStore) DeleteFeature(layer, featureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc, err := s.loadLocked(layer)
	if err != nil {
		return err
	}

	kept := fc.Features[:0]
	for _, f := range fc.Features {
		if FeatureID(f) != featureID {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(fc.Features) {
		return fmt.Errorf("feature %s not found in %s", featureID, layer)
	}
	fc.Features = kept

	if err := s.saveLocked(layer, fc); err != nil {
		return err
	}
	s.publish(layer, "deleted", featureID)
	return nil
}

// AddFeature appends a new feature to the layer. When props carries no id,
// one is generated as max(existing numeric ids)+1. Returns the feature id.
func (s *FeatureStore) AddFeature(layer string, props map[string]any, geom orb.Geometry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc, err := s.loadLocked(layer)
	if err != nil {
		return "", err
	}

	if props == nil {
		props = map[string]any{}
	}
	if _, ok := props["id"]; !ok {
		maxID := 0
		for _, f := range fc.Features {
			if n, err := strconv.Atoi(FeatureID(f)); err == nil && n > maxID {
				maxID = n
			}
		}
		props["id"] = maxID + 1
	}

	f := geojson.NewFeature(geom)
	for k, v := range props {
		f.Properties[k] = v
	}
	fc.Append(f)

	if err := s.saveLocked(layer, fc); err != nil {
		return "", err
	}
	id := FeatureID(f)
	s.publish(layer, "created", id)
	return id, nil
}

// GetFeature returns the identified feature from the layer.
func (s *FeatureStore) GetFeature(layer, featureID string) (*geojson.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc, err := s.loadLocked(layer)
	if err != nil {
		return nil, err
	}
	for _, f := range fc.Features {
		if FeatureID(f) == featureID {
			return f, nil
		}
	}
	return nil, fmt.Errorf("feature %s not found in %s", featureID, layer)
}

func (s *FeatureStore) publish(layer, action, id string) {
	if s.bus != nil {
		s.bus.Publish(Event{Layer: layer, Action: action, FeatureID: id})
	}
}

// FeatureID returns the feature's informal identifier: the "id" property,
// falling back to "ID". Ids are compared by their string form since the
// source data mixes numbers and strings.
func FeatureID(f *geojson.Feature) string {
	for _, key := range []string{"id", "ID"} {
		if v, ok := f.Properties[key]; ok {
			return PropString(v)
		}
	}
	return ""
}

// PropString formats a free-form property value for display or comparison.
// JSON numbers arrive as float64; whole values print without a decimal.
func PropString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
