package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load builds the config from the process environment, filling defaults
// and validating the result.
func Load() (*Config, error) {
	return load(os.Getenv)
}

// LoadWithOverrides loads configuration with overrides taking precedence
// over the environment. Keys are environment variable names and empty
// values are ignored. CLI flags use this so validation sees final values.
func LoadWithOverrides(overrides map[string]string) (*Config, error) {
	return load(func(key string) string {
		if v := overrides[key]; v != "" {
			return v
		}
		return os.Getenv(key)
	})
}

func load(lookup func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envTag is the parsed env/envAlt/default/required tag set of one field.
type envTag struct {
	names    []string
	fallback string
	required bool
}

func parseEnvTag(f reflect.StructField) (envTag, bool) {
	primary := f.Tag.Get("env")
	if primary == "" {
		return envTag{}, false
	}
	tag := envTag{
		names:    []string{primary},
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}
	if alt := f.Tag.Get("envAlt"); alt != "" {
		tag.names = append(tag.names, alt)
	}
	return tag, true
}

// resolve returns the first non-empty variable, then the default.
func (tag envTag) resolve(lookup func(string) string) (string, error) {
	for _, name := range tag.names {
		if v := lookup(name); v != "" {
			return v, nil
		}
	}
	if tag.required {
		return "", fmt.Errorf("required environment variable %s is not set", tag.names[0])
	}
	return tag.fallback, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// loadStruct fills the tagged fields of v, descending into nested structs.
// A variable set to the empty string counts as unset.
func loadStruct(v reflect.Value, lookup func(string) string) error {
	for i := 0; i < v.NumField(); i++ {
		dst := v.Field(i)
		if !dst.CanSet() {
			continue
		}

		sf := v.Type().Field(i)
		if sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			if err := loadStruct(dst, lookup); err != nil {
				return err
			}
			continue
		}

		tag, ok := parseEnvTag(sf)
		if !ok {
			continue
		}
		raw, err := tag.resolve(lookup)
		if err != nil {
			return err
		}
		if raw == "" {
			continue
		}
		if err := assign(dst, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", tag.names[0], raw, err)
		}
	}
	return nil
}

// assign parses raw into dst according to the field's type.
func assign(dst reflect.Value, raw string) error {
	if dst.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		dst.SetInt(int64(d))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		dst.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		dst.SetBool(b)
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", dst.Type().Elem().Kind())
		}
		dst.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", dst.Kind())
	}
	return nil
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// Validate reports every invalid setting in a single error.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Name == "") {
		errs = append(errs, "DATABASE_URL or DB_HOST and DB_NAME are required")
	}
	if c.Database.URL == "" && (c.Database.Port <= 0 || c.Database.Port > 65535) {
		errs = append(errs, fmt.Sprintf("DB_PORT (%d) must be 1-65535", c.Database.Port))
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Import validation
	if !validIdentifier(c.Import.Schema) {
		errs = append(errs, fmt.Sprintf("SCHEMA_NAME (%q) must contain only letters, digits and underscores", c.Import.Schema))
	}
	if !validIdentifier(c.Import.Table) {
		errs = append(errs, fmt.Sprintf("TABLE_NAME (%q) must contain only letters, digits and underscores", c.Import.Table))
	}
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxBatchSize < c.Import.MaxFileSize {
		errs = append(errs, fmt.Sprintf("IMPORT_MAX_BATCH_SIZE (%d) must be >= IMPORT_MAX_FILE_SIZE (%d)",
			c.Import.MaxBatchSize, c.Import.MaxFileSize))
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.SampleLimit <= 0 {
		errs = append(errs, "IMPORT_SAMPLE_LIMIT must be positive")
	}
	if c.Import.PreviewRows < 0 {
		errs = append(errs, "IMPORT_PREVIEW_ROWS must be non-negative")
	}
	if c.Import.Timeout <= 0 {
		errs = append(errs, "IMPORT_TIMEOUT must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.ImportLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validIdentifier reports whether s is a non-empty run of ASCII letters,
// digits and underscores.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9') {
			return false
		}
	}
	return true
}

// String renders the config for logs with credentials masked.
func (c *Config) String() string {
	db := fmt.Sprintf("Host: %q, Port: %d, Name: %q, User: %q, Password: [MASKED]",
		c.Database.Host, c.Database.Port, c.Database.Name, c.Database.User)
	if c.Database.URL != "" {
		db = "URL: [MASKED]"
	}
	sections := []string{
		fmt.Sprintf("Server: {Host: %q, Port: %d}", c.Server.Host, c.Server.Port),
		fmt.Sprintf("Database: {%s, MaxConns: %d, MinConns: %d}", db, c.Database.MaxConns, c.Database.MinConns),
		fmt.Sprintf("Import: {Schema: %q, Table: %q, MaxFileSize: %d, MaxConcurrent: %d}",
			c.Import.Schema, c.Import.Table, c.Import.MaxFileSize, c.Import.MaxConcurrent),
		fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}", c.Rate.Enabled, c.Rate.RequestsPerMinute),
		fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d}", c.Security.RequireAPIKey, len(c.Security.APIKeys)),
		fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format),
	}
	return "Config{" + strings.Join(sections, ", ") + "}"
}
