package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Manifest lists the files of a batch import and where each one goes.
//
//	schema: sales
//	files:
//	  - path: exports/customers.csv
//	  - path: exports/orders.xlsx
//	    table: orders_2024
type Manifest struct {
	// Schema applies to every entry that does not set its own.
	Schema string          `yaml:"schema"`
	Files  []ManifestEntry `yaml:"files"`
}

// ManifestEntry is one file in a Manifest.
type ManifestEntry struct {
	Path   string `yaml:"path"`
	Table  string `yaml:"table,omitempty"`
	Schema string `yaml:"schema,omitempty"`
}

var errEmptyManifest = errors.New("manifest lists no files")

// LoadManifest reads a YAML manifest. Unknown keys are rejected and
// relative paths are resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("%s: %w", path, errEmptyManifest)
	}

	base := filepath.Dir(path)
	for i := range m.Files {
		e := &m.Files[i]
		if e.Path == "" {
			return nil, fmt.Errorf("%s: files[%d]: path is required", path, i)
		}
		if !filepath.IsAbs(e.Path) {
			e.Path = filepath.Join(base, e.Path)
		}
		if e.Schema == "" {
			e.Schema = m.Schema
		}
	}
	return &m, nil
}

// WriteEnvFile saves the database and import settings to a dotenv file so
// later runs pick them up. The file is replaced.
func WriteEnvFile(path string, c *Config) error {
	env := map[string]string{
		"DB_HOST":     c.Database.Host,
		"DB_PORT":     strconv.Itoa(c.Database.Port),
		"DB_NAME":     c.Database.Name,
		"DB_USER":     c.Database.User,
		"DB_PASSWORD": c.Database.Password,
		"SCHEMA_NAME": c.Import.Schema,
		"TABLE_NAME":  c.Import.Table,
	}
	if c.Database.URL != "" {
		env["DATABASE_URL"] = c.Database.URL
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}
