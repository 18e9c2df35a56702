// Package server wires the HTTP stack: REST API, editor SSE routes,
// static files and the viewer/editor pages.
package server

import (
	"context"
	"database/sql"
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"

	"github.com/cagpile/villagemap/internal/api"
	apieditor "github.com/cagpile/villagemap/internal/api/editor"
	"github.com/cagpile/villagemap/internal/db"
	"github.com/cagpile/villagemap/internal/editor"
	"github.com/cagpile/villagemap/internal/service"
	"github.com/cagpile/villagemap/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and page templates
}

// Server is the village map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	bus      *service.EventBus
	ctrl     *editor.Controller
	center   *apieditor.Center
	renderer *templates.Renderer
}

// New creates a new village map server.
func New(cfg Config) (*Server, error) {
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("villagemap API", "1.0.0")
	humaConfig.Info.Description = "Barangay Cagpile GIS: households, facilities, roads and boundary layers with a browser map editor."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	bus := service.NewEventBus()
	store, err := service.NewFeatureStore(cfg.DataDir, bus)
	if err != nil {
		return nil, fmt.Errorf("feature store: %w", err)
	}

	services := &api.Services{
		Store:  store,
		Layers: service.DefaultLayers(),
		Map:    service.DefaultMapConfig(),
	}

	renderer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if r, err := templates.NewFromDir(fragmentsDir); err == nil {
			renderer = r
		}
	}

	center := apieditor.NewCenter(0)

	ctrl := editor.New(editor.Config{
		Surface:  editor.NewMemorySurface(),
		Toolkit:  &editor.MemoryToolkit{},
		Notifier: center,
		// The browser confirms destructive actions before posting, so the
		// server-side prompt always passes.
		Confirmer: editor.ConfirmerFunc(func(string) bool { return true }),
		Renderer:  renderer,
		Client:    &http.Client{Timeout: 10 * time.Second},
		Layers:    services.Layers,
	})

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		services: services,
		bus:      bus,
		ctrl:     ctrl,
		center:   center,
		renderer: renderer,
	}

	conn, err := db.Get(db.Config{
		DataDir: cfg.DataDir,
		DBName:  "villagemap",
	})
	if err == nil {
		s.db = conn
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated API description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Warm loads every layer into the editing controller from the server's own
// endpoints. Call it after the listener is up.
func (s *Server) Warm(ctx context.Context, baseURL string) {
	s.ctrl.LoadAll(ctx, baseURL)
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	apiHandler := api.NewHandler(s.services, s.db != nil)
	apiHandler.RegisterRoutes(s.humaAPI)

	dbHandler := api.NewDBHandler(s.db)
	dbHandler.RegisterRoutes(s.humaAPI)

	baseURL := fmt.Sprintf("http://%s:%s", s.config.Host, s.config.Port)
	editorHandler := apieditor.NewHandler(s.ctrl, s.renderer, s.services.Layers, s.bus, s.center, baseURL)
	editorHandler.RegisterRoutes(s.humaAPI)

	// Bulk upload and the template download are page-level routes, not
	// part of the documented API surface.
	s.mux.HandleFunc("/upload-csv", s.handleCSVUpload)
	s.mux.HandleFunc("/download-template", s.handleCSVTemplate)

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/editor", s.handleEditor)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/viewer", http.StatusFound)
}

//go:embed pages/*.html
var pagesFS embed.FS

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	s.servePage(w, r, "viewer.html")
}

func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	s.servePage(w, r, "editor.html")
}

// servePage serves a page from WebDir when present, falling back to the
// embedded shell so the server works without an external web/ tree.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request, name string) {
	if s.config.WebDir != "" {
		path := filepath.Join(s.config.WebDir, "templates", name)
		if _, err := os.Stat(path); err == nil {
			http.ServeFile(w, r, path)
			return
		}
	}

	data, err := pagesFS.ReadFile("pages/" + name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// csvHeader is the expected column order for household bulk uploads.
var csvHeader = []string{
	"household_id", "head_of_household", "num_residents",
	"has_seniors_pwd", "contact", "purok", "latitude", "longitude",
}

// handleCSVUpload imports household rows from an uploaded CSV file.
func (s *Server) handleCSVUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("csv_file")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		http.Error(w, "Please upload a CSV file", http.StatusBadRequest)
		return
	}

	added, err := s.importHouseholdCSV(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"success":true,"message":"Imported %d households"}`, added)
}

func (s *Server) importHouseholdCSV(r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	head, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("empty CSV file")
	}
	if len(head) < len(csvHeader) {
		return 0, fmt.Errorf("expected columns: %s", strings.Join(csvHeader, ","))
	}

	added := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return added, fmt.Errorf("row %d: %w", added+2, err)
		}

		lat, err := strconv.ParseFloat(rec[6], 64)
		if err != nil {
			return added, fmt.Errorf("row %d: bad latitude %q", added+2, rec[6])
		}
		lon, err := strconv.ParseFloat(rec[7], 64)
		if err != nil {
			return added, fmt.Errorf("row %d: bad longitude %q", added+2, rec[7])
		}
		residents, _ := strconv.Atoi(rec[2])

		props := map[string]any{
			"id":         householdID(rec[0]),
			"Owner":      rec[1],
			"Residents":  residents,
			"senior/PWD": strings.ToUpper(rec[3]),
			"Contact no": rec[4],
			"purok":      rec[5],
		}
		if _, err := s.services.Store.AddFeature(service.LayerHouseholds, props, orb.Point{lon, lat}); err != nil {
			return added, fmt.Errorf("row %d: %w", added+2, err)
		}
		added++
	}
	return added, nil
}

// householdID normalizes survey-form ids like "CPL-001" to their numeric
// value so they sort and dedupe with ids already in the layer.
func householdID(raw string) any {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "CPL-")
	if n, err := strconv.Atoi(trimmed); err == nil {
		return n
	}
	return raw
}

// handleCSVTemplate serves a fill-in template for household bulk uploads.
func (s *Server) handleCSVTemplate(w http.ResponseWriter, r *http.Request) {
	const template = `household_id,head_of_household,num_residents,has_seniors_pwd,contact,purok,latitude,longitude
CPL-001,Juan Dela Cruz,5,YES,09123456789,1,12.2392,125.3185
CPL-002,Maria Santos,4,NO,09198765432,1,12.2395,125.3188
CPL-003,Pedro Reyes,6,YES,09223344556,2,12.2389,125.3182
`
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=household_template.csv")
	io.WriteString(w, template)
}
