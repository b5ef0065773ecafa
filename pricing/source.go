package pricing

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

//go:embed data/azure_databricks.json
var defaultCatalog []byte

// Source supplies the raw pricing document.
type Source interface {
	Name() string
	ReadAll(ctx context.Context) ([]byte, error)
}

// FileSource reads the pricing document from a local JSON file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string {
	return s.Path
}

func (s FileSource) ReadAll(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrDataUnavailable, s.Path, err)
	}
	return data, nil
}

type embeddedSource struct{}

// DefaultSource returns the pricing table compiled into the binary.
func DefaultSource() Source {
	return embeddedSource{}
}

func (embeddedSource) Name() string {
	return "embedded"
}

func (embeddedSource) ReadAll(ctx context.Context) ([]byte, error) {
	return defaultCatalog, ctx.Err()
}

// SourceFor returns a FileSource for path, or the embedded table when path is empty.
func SourceFor(path string) Source {
	if path == "" {
		return DefaultSource()
	}
	return FileSource{Path: path}
}

// Load reads and validates a catalog from src.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	start := time.Now()
	data, err := src.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", src.Name(), err)
	}
	log.Infof("loaded pricing catalog [source=%s, node-types=%d, regions=%v, took=%s]", src.Name(), c.Len(), c.Regions(), time.Since(start))
	return c, nil
}

// Loader performs the one-time catalog load for a process. The first
// successful result is kept and returned by every later call; failures are
// not cached.
type Loader struct {
	src     Source
	mu      sync.Mutex
	catalog *Catalog
}

// NewLoader returns a Loader reading from src.
func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

// Load returns the cached catalog, loading it on first use.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.catalog != nil {
		return l.catalog, nil
	}
	c, err := Load(ctx, l.src)
	if err != nil {
		return nil, err
	}
	l.catalog = c
	return c, nil
}
