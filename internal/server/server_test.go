package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cagpile/villagemap/internal/api"
	"github.com/cagpile/villagemap/internal/service"
)

func newCSVTestServer(t *testing.T) (*Server, *service.FeatureStore) {
	t.Helper()
	store, err := service.NewFeatureStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return &Server{services: &api.Services{Store: store}}, store
}

func multipartCSV(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("csv_file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestCSVUpload(t *testing.T) {
	srv, store := newCSVTestServer(t)

	csv := `household_id,head_of_household,num_residents,has_seniors_pwd,contact,purok,latitude,longitude
CPL-001,Juan Dela Cruz,5,yes,09123456789,1,12.2392,125.3185
CPL-002,Maria Santos,4,NO,09198765432,1,12.2395,125.3188
`
	body, contentType := multipartCSV(t, "households.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/upload-csv", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.handleCSVUpload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Imported 2") {
		t.Fatalf("response = %q, want 2 imported", rec.Body.String())
	}

	f, err := store.GetFeature(service.LayerHouseholds, "1")
	if err != nil {
		t.Fatal(err)
	}
	if f.Properties["Owner"] != "Juan Dela Cruz" {
		t.Fatalf("Owner = %v", f.Properties["Owner"])
	}
	// The vulnerability flag normalizes to upper case on import.
	if f.Properties["senior/PWD"] != "YES" {
		t.Fatalf("senior/PWD = %v, want YES", f.Properties["senior/PWD"])
	}
	if f.Properties["Residents"] != 5 && f.Properties["Residents"] != float64(5) {
		t.Fatalf("Residents = %v, want 5", f.Properties["Residents"])
	}
	if f.Properties["Contact no"] != "09123456789" {
		t.Fatalf("Contact no = %v", f.Properties["Contact no"])
	}
}

func TestCSVUploadRejectsBadRows(t *testing.T) {
	srv, store := newCSVTestServer(t)

	csv := `household_id,head_of_household,num_residents,has_seniors_pwd,contact,purok,latitude,longitude
CPL-001,Juan Dela Cruz,5,YES,09123456789,1,not-a-number,125.3185
`
	body, contentType := multipartCSV(t, "households.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/upload-csv", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.handleCSVUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("upload with bad latitude = %d, want 400", rec.Code)
	}
	fc, err := store.Load(service.LayerHouseholds)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 0 {
		t.Fatalf("bad row imported %d features", len(fc.Features))
	}
}

func TestCSVUploadRejectsNonCSV(t *testing.T) {
	srv, _ := newCSVTestServer(t)

	body, contentType := multipartCSV(t, "households.geojson", "{}")
	req := httptest.NewRequest(http.MethodPost, "/upload-csv", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.handleCSVUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-CSV upload = %d, want 400", rec.Code)
	}
}

func TestCSVUploadMethodNotAllowed(t *testing.T) {
	srv, _ := newCSVTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleCSVUpload(rec, httptest.NewRequest(http.MethodGet, "/upload-csv", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET upload = %d, want 405", rec.Code)
	}
}

func TestCSVTemplateDownload(t *testing.T) {
	srv, _ := newCSVTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleCSVTemplate(rec, httptest.NewRequest(http.MethodGet, "/download-template", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("download = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("Content-Type = %q", got)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "household_id,head_of_household") {
		t.Fatalf("template header missing: %q", body)
	}
	for _, id := range []string{"CPL-001", "CPL-002", "CPL-003"} {
		if !strings.Contains(body, id) {
			t.Fatalf("template missing sample row %s", id)
		}
	}
}

func TestPagesFallBackToEmbeddedShells(t *testing.T) {
	srv := &Server{}

	cases := []struct {
		handler func(http.ResponseWriter, *http.Request)
		path    string
		want    string
	}{
		{srv.handleViewer, "/viewer", "Map Viewer"},
		{srv.handleEditor, "/editor", `id="layer-list"`},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		tc.handler(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, want 200", tc.path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Fatalf("GET %s Content-Type = %q", tc.path, ct)
		}
		if !strings.Contains(rec.Body.String(), tc.want) {
			t.Fatalf("GET %s body missing %q", tc.path, tc.want)
		}
	}
}

func TestPagesPreferWebDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "templates"), 0755); err != nil {
		t.Fatal(err)
	}
	custom := "<html><body>custom viewer</body></html>"
	if err := os.WriteFile(filepath.Join(dir, "templates", "viewer.html"), []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}

	srv := &Server{config: Config{WebDir: dir}}

	rec := httptest.NewRecorder()
	srv.handleViewer(rec, httptest.NewRequest(http.MethodGet, "/viewer", nil))
	if !strings.Contains(rec.Body.String(), "custom viewer") {
		t.Fatalf("viewer body = %q, want WebDir override", rec.Body.String())
	}

	// editor.html absent from WebDir: the embedded shell still serves.
	rec = httptest.NewRecorder()
	srv.handleEditor(rec, httptest.NewRequest(http.MethodGet, "/editor", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("editor without WebDir page = %d, want 200", rec.Code)
	}
}
