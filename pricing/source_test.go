package pricing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing_data.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing catalog file: %v", err)
	}
	return path
}

func TestLoad_DefaultSource(t *testing.T) {
	c, err := Load(context.Background(), DefaultSource())
	if err != nil {
		t.Fatalf("embedded catalog failed to load: %v", err)
	}
	if c.Len() == 0 {
		t.Fatal("expected embedded catalog to contain node types")
	}
	if !c.HasRegion("Canada Central") {
		t.Errorf("expected embedded catalog to support Canada Central, got %v", c.Regions())
	}
	for _, nodeType := range c.NodeTypes() {
		for _, region := range c.Regions() {
			if _, err := c.Lookup(nodeType, region); err != nil {
				t.Errorf("embedded catalog: %v", err)
			}
		}
	}
}

func TestLoad_FileSource(t *testing.T) {
	path := writeCatalogFile(t, twoRegionDoc)

	c, err := Load(context.Background(), FileSource{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 node types, got %d", c.Len())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "missing.json")})
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := writeCatalogFile(t, `{"Standard_DS3_v2": `)

	_, err := Load(context.Background(), FileSource{Path: path})
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestSourceFor(t *testing.T) {
	if got := SourceFor("").Name(); got != "embedded" {
		t.Errorf("empty path: expected embedded source, got %q", got)
	}
	if got := SourceFor("/etc/pricing.json").Name(); got != "/etc/pricing.json" {
		t.Errorf("expected file source, got %q", got)
	}
}

// countingSource counts reads so tests can observe caching.
type countingSource struct {
	data  []byte
	err   error
	reads int
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) ReadAll(ctx context.Context) ([]byte, error) {
	s.reads++
	return s.data, s.err
}

func TestLoader_CachesSuccessfulLoad(t *testing.T) {
	src := &countingSource{data: []byte(twoRegionDoc)}
	loader := NewLoader(src)

	first, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Error("expected the same catalog instance on repeated loads")
	}
	if src.reads != 1 {
		t.Errorf("expected 1 read, got %d", src.reads)
	}

	fresh, err := Load(context.Background(), &countingSource{data: []byte(twoRegionDoc)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, nodeType := range fresh.NodeTypes() {
		for _, region := range fresh.Regions() {
			want, _ := fresh.Lookup(nodeType, region)
			got, _ := first.Lookup(nodeType, region)
			if !got.TotalPrice.Equal(want.TotalPrice) || got.CPUs != want.CPUs {
				t.Errorf("%s/%s: cached %+v differs from fresh %+v", nodeType, region, got, want)
			}
		}
	}
}

func TestLoader_DoesNotCacheFailure(t *testing.T) {
	src := &countingSource{err: ErrDataUnavailable}
	loader := NewLoader(src)

	if _, err := loader.Load(context.Background()); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}

	src.err = nil
	src.data = []byte(twoRegionDoc)
	if _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("expected retry after failure to succeed, got %v", err)
	}
	if src.reads != 2 {
		t.Errorf("expected 2 reads, got %d", src.reads)
	}
}
