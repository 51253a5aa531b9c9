package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// ModelExt is the file extension of model files (matched case-insensitively).
const ModelExt = ".sql"

// IsModelFile reports whether a file name is a model.
func IsModelFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ModelExt)
}

// NewIdentity derives a model identity from its location below root.
// The schema is the first directory below root whatever the nesting
// depth, and the table is the file name without its extension. Files
// directly under root use defaultSchema.
func NewIdentity(root, path, defaultSchema string) (core.ModelIdentity, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return core.ModelIdentity{}, fmt.Errorf("model %s is not below %s: %w", path, root, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return core.ModelIdentity{}, fmt.Errorf("model %s is not below %s", path, root)
	}

	parts := strings.Split(rel, "/")
	base := parts[len(parts)-1]
	table := strings.TrimSuffix(base, filepath.Ext(base))
	if table == "" {
		return core.ModelIdentity{}, fmt.Errorf("model %s has an empty name", path)
	}

	schema := defaultSchema
	if len(parts) > 1 {
		schema = parts[0]
	}
	if schema == "" {
		return core.ModelIdentity{}, fmt.Errorf("model %s is not inside a schema directory", path)
	}

	return core.NewModelIdentity(path, schema, table), nil
}
