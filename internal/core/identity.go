package core

import (
	"path/filepath"
	"strings"
)

// TableNameFromFile derives a table name from a file path: the base name
// without extension, lower-cased, keeping only letters, digits and '_'.
// The result may be empty.
func TableNameFromFile(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return cleanIdentifier(base)
}

// ResolveIdentity picks the destination for a file: the explicit table
// option, else the name derived from the file, else the service default.
func (s *Service) ResolveIdentity(path string, opts ImportOptions) (TableIdentity, error) {
	return resolveIdentity(path, opts, s.defaultSchema, s.defaultTable)
}

func resolveIdentity(path string, opts ImportOptions, defaultSchema, defaultTable string) (TableIdentity, error) {
	schema := cleanIdentifier(opts.Schema)
	if schema == "" {
		schema = defaultSchema
	}

	name := cleanIdentifier(opts.Table)
	if name == "" {
		name = TableNameFromFile(path)
	}
	if name == "" {
		name = defaultTable
	}

	if schema == "" || name == "" {
		return TableIdentity{}, ErrInvalidTableName
	}
	return TableIdentity{Schema: schema, Name: name}, nil
}

// cleanIdentifier lower-cases s and drops everything except ASCII letters,
// digits and underscores.
func cleanIdentifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
