// Package db manages the DuckDB connection backing the ad-hoc query API.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the singleton DuckDB connection with the spatial extension
// loaded and a view registered per village layer, so the query endpoint
// can inspect the GeoJSON files in SQL.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create duckdb directory: %w", err)
			return
		}

		dbPath := filepath.Join(duckdbDir, cfg.DBName+".duckdb")
		instance, initErr = sql.Open("duckdb", dbPath)
		if initErr != nil {
			return
		}

		for _, ext := range []string{"spatial", "parquet"} {
			// Extensions might already be installed; load failures only
			// disable the layer views, not the connection.
			_, _ = instance.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
		}

		registerLayerViews(instance, cfg.DataDir)
	})
	return instance, initErr
}

// registerLayerViews creates one view per layer GeoJSON file via ST_Read.
// A missing file just skips that view; the rest of the API is unaffected.
func registerLayerViews(db *sql.DB, dataDir string) {
	files := map[string]string{
		"households": "Cagpile_Households.geojson",
		"facilities": "Cagpile_Facilities.geojson",
		"roads":      "Cagpile_Road.geojson",
		"boundary":   "Cagpile_Boundary.geojson",
	}
	for view, file := range files {
		path := filepath.Join(dataDir, file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		stmt := fmt.Sprintf(
			"CREATE OR REPLACE VIEW %s AS SELECT * FROM ST_Read('%s')",
			view, strings.ReplaceAll(path, "'", "''"),
		)
		if _, err := db.Exec(stmt); err != nil {
			// spatial extension unavailable; the query endpoint still works
			// against whatever tables exist.
			continue
		}
	}
}

// Close closes the database connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}
