// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/cagpile/villagemap/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Store  *service.FeatureStore
	Layers map[string]service.LayerConfig
	Map    service.MapConfig
}

// Shared types

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type MessageBody struct {
	Success bool   `json:"success" doc:"Whether the operation succeeded"`
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type InfoBody struct {
	Name    string                         `json:"name" doc:"Service name"`
	Version string                         `json:"version" doc:"Service version"`
	DataDir string                         `json:"data_dir" doc:"Data directory path"`
	DB      bool                           `json:"db" doc:"Whether the query database is available"`
	Map     service.MapConfig              `json:"map" doc:"Initial map view"`
	Layers  map[string]service.LayerConfig `json:"layers" doc:"Layer display configuration"`
}

// Handler holds the REST API handlers.
type Handler struct {
	svc  *Services
	dbOK bool
}

// NewHandler creates the API handler set.
func NewHandler(svc *Services, dbOK bool) *Handler {
	return &Handler{svc: svc, dbOK: dbOK}
}

// RegisterRoutes registers all REST routes.
func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
	huma.Get(api, "/api/statistics", h.GetStatistics, huma.OperationTags("data"))

	// One fixed GeoJSON endpoint per layer, matching what the map expects.
	for _, name := range service.LayerNames {
		name := name
		huma.Register(api, huma.Operation{
			OperationID: "get-" + name,
			Method:      "GET",
			Path:        "/api/" + name,
			Summary:     "Get the " + name + " layer as GeoJSON",
			Tags:        []string{"layers"},
		}, func(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
			return h.layerGeoJSON(name)
		})
	}

	huma.Get(api, "/api/get-feature/{layer}/{id}", h.GetFeature, huma.OperationTags("features"))
	huma.Post(api, "/api/add-feature", h.AddFeature, huma.OperationTags("features"))
	huma.Post(api, "/api/update-feature", h.UpdateFeature, huma.OperationTags("features"))
	huma.Post(api, "/api/delete-feature", h.DeleteFeature, huma.OperationTags("features"))
}

func (h *Handler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *Handler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:    "villagemap",
		Version: "0.1.0",
		DataDir: h.svc.Store.DataDir(),
		DB:      h.dbOK,
		Map:     h.svc.Map,
		Layers:  h.svc.Layers,
	}}, nil
}

// layerGeoJSON serves a layer's feature collection. Load failures are
// logged and served as an empty collection so one bad file never takes a
// layer endpoint down.
func (h *Handler) layerGeoJSON(name string) (*GeoJSONOutput, error) {
	fc, err := h.svc.Store.Load(name)
	if err != nil {
		log.Printf("loading layer %s: %v", name, err)
		fc = geojson.NewFeatureCollection()
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding layer", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

type StatsOutput struct {
	Body service.Stats
}

func (h *Handler) GetStatistics(ctx context.Context, input *struct{}) (*StatsOutput, error) {
	layers := make(map[string]*geojson.FeatureCollection, len(service.LayerNames))
	for _, name := range service.LayerNames {
		fc, err := h.svc.Store.Load(name)
		if err != nil {
			log.Printf("statistics: skipping %s: %v", name, err)
			continue
		}
		layers[name] = fc
	}
	return &StatsOutput{Body: service.Statistics(layers)}, nil
}

type FeaturePathInput struct {
	Layer string `path:"layer" doc:"Layer name" example:"households"`
	ID    string `path:"id" doc:"Feature id" example:"12"`
}

func (h *Handler) GetFeature(ctx context.Context, input *FeaturePathInput) (*GeoJSONOutput, error) {
	f, err := h.svc.Store.GetFeature(input.Layer, input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	data, err := f.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding feature", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

// featureRequest is the body shared by the feature write endpoints. The
// geometry is parsed manually because it is free-form GeoJSON.
type featureRequest struct {
	Layer      string          `json:"layer"`
	FeatureID  string          `json:"feature_id"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type RawInput struct {
	RawBody []byte
}

func parseFeatureRequest(raw []byte) (*featureRequest, *geojson.Geometry, error) {
	var req featureRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Layer == "" {
		return nil, nil, fmt.Errorf("layer is required")
	}

	var geom *geojson.Geometry
	if len(req.Geometry) > 0 {
		g := &geojson.Geometry{}
		if err := json.Unmarshal(req.Geometry, g); err != nil {
			return nil, nil, fmt.Errorf("invalid geometry: %w", err)
		}
		geom = g
	}
	return &req, geom, nil
}

func orbGeometry(g *geojson.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return g.Geometry()
}

type AddFeatureBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	FeatureID string `json:"feature_id" doc:"Id of the created feature"`
}

func (h *Handler) AddFeature(ctx context.Context, input *RawInput) (*struct{ Body AddFeatureBody }, error) {
	req, geom, err := parseFeatureRequest(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if geom == nil {
		return nil, huma.Error400BadRequest("geometry is required")
	}
	if req.Properties == nil {
		req.Properties = map[string]any{}
	}

	id, err := h.svc.Store.AddFeature(req.Layer, req.Properties, geom.Geometry())
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body AddFeatureBody }{Body: AddFeatureBody{
		Success: true, Message: "Feature added", FeatureID: id,
	}}, nil
}

func (h *Handler) UpdateFeature(ctx context.Context, input *RawInput) (*struct{ Body MessageBody }, error) {
	req, geom, err := parseFeatureRequest(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if req.FeatureID == "" {
		return nil, huma.Error400BadRequest("feature_id is required")
	}

	if err := h.svc.Store.UpdateFeature(req.Layer, req.FeatureID, req.Properties, orbGeometry(geom)); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Success: true, Message: "Feature updated"}}, nil
}

func (h *Handler) DeleteFeature(ctx context.Context, input *RawInput) (*struct{ Body MessageBody }, error) {
	req, _, err := parseFeatureRequest(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if req.FeatureID == "" {
		return nil, huma.Error400BadRequest("feature_id is required")
	}

	if err := h.svc.Store.DeleteFeature(req.Layer, req.FeatureID); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Success: true, Message: "Feature deleted"}}, nil
}
