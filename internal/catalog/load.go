package catalog

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/cadac/internal/parser"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// DefaultSchema is used for model files placed directly in the models root.
const DefaultSchema = "public"

// Options configures discovery.
type Options struct {
	// DefaultSchema names the schema of files directly under the root.
	// Empty makes such files a failure.
	DefaultSchema string
	// Workers bounds concurrent file parsing. Zero uses GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Load discovers every model below root, parses them and builds the
// dependency graph.
func Load(ctx context.Context, root string, opts Options) (*Catalog, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &core.DiscoveryError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &core.DiscoveryError{Path: root, Err: errors.New("not a directory")}
	}
	return LoadFS(ctx, os.DirFS(root), root, opts)
}

type sourceFile struct {
	path     string // slash separated, relative to fsys
	identity core.ModelIdentity
}

// LoadFS is Load over an fs.FS rooted at the models directory. root is
// only used to build the file paths reported in identities and errors.
//
// Files that cannot be read or parsed are recorded as failures and do not
// stop discovery. Two files mapping to the same qualified name abort it
// with *core.DuplicateModelError before anything is parsed.
func LoadFS(ctx context.Context, fsys fs.FS, root string, opts Options) (*Catalog, error) {
	start := time.Now()
	c := newCatalog(opts.Logger)

	c.logger.Info("discovering models", "models_dir", root)

	var files []sourceFile
	byName := make(map[string][]string)

	walkErr := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == "." {
				return &core.DiscoveryError{Path: root, Err: err}
			}
			c.addFailure(&Failure{Path: filepath.Join(root, filepath.FromSlash(path)), Err: &core.DiscoveryError{Path: path, Err: err}})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsModelFile(d.Name()) {
			return nil
		}

		fullPath := filepath.Join(root, filepath.FromSlash(path))
		id, idErr := NewIdentity(root, fullPath, opts.DefaultSchema)
		if idErr != nil {
			c.addFailure(&Failure{Path: fullPath, Err: idErr})
			return nil
		}

		files = append(files, sourceFile{path: path, identity: id})
		key := strings.ToLower(id.QualifiedName)
		byName[key] = append(byName[key], fullPath)
		return nil
	})
	if walkErr != nil {
		var discoveryErr *core.DiscoveryError
		if errors.As(walkErr, &discoveryErr) {
			return nil, discoveryErr
		}
		return nil, &core.DiscoveryError{Path: root, Err: walkErr}
	}

	if err := checkDuplicates(byName); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.parseFile(fsys, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := c.BuildGraph(); err != nil {
		return nil, err
	}

	c.logger.Info("discovery completed",
		"models_total", len(files),
		"models_failed", len(c.Failures()),
		"duration_ms", time.Since(start).Milliseconds())

	return c, nil
}

func (c *Catalog) parseFile(fsys fs.FS, f sourceFile) {
	content, err := fs.ReadFile(fsys, f.path)
	if err != nil {
		c.logger.Debug("model read error", "path", f.identity.FilePath, "error", err)
		c.addFailure(&Failure{
			Identity: f.identity,
			Path:     f.identity.FilePath,
			Err:      &core.DiscoveryError{Path: f.identity.FilePath, Err: err},
		})
		return
	}

	meta, err := parser.Extract(f.identity, string(content))
	if err != nil {
		c.logger.Debug("model parse error", "path", f.identity.FilePath, "error", err)
		c.addFailure(&Failure{Identity: f.identity, Path: f.identity.FilePath, Err: err})
		return
	}

	c.logger.Debug("parsed model",
		"model", f.identity.QualifiedName,
		"references", len(meta.References),
		"columns", len(meta.Columns))
	c.add(meta)
}

// checkDuplicates reports names claimed by more than one file. byName is
// keyed by the lower-cased qualified name, matching registry lookups.
func checkDuplicates(byName map[string][]string) error {
	names := make([]string, 0, len(byName))
	for name, paths := range byName {
		if len(paths) > 1 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	paths := byName[names[0]]
	sort.Strings(paths)
	return &core.DuplicateModelError{QualifiedName: names[0], Paths: paths}
}
