package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const catalogYAML = `modules:
  Analysis I: math
  Programmierung: cs
  Lineare Algebra: math
  Englisch: languages
whitelist:
  - Technische Universität München
  - Universität Düsseldorf
`

func TestParseCatalogDerivesCategories(t *testing.T) {
	c, err := ParseCatalog([]byte(catalogYAML))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}
	if want := []string{"math", "cs", "languages"}; !reflect.DeepEqual(c.Categories, want) {
		t.Fatalf("categories = %v, want %v", c.Categories, want)
	}
	if c.Modules[2].Name != "Lineare Algebra" {
		t.Fatalf("module order lost: %v", c.Modules)
	}
	if !reflect.DeepEqual(c.GermanPrograms, []string{"bwl"}) {
		t.Fatalf("germanPrograms = %v", c.GermanPrograms)
	}
	if len(c.Whitelist) != 2 {
		t.Fatalf("whitelist = %v", c.Whitelist)
	}
}

func TestParseCatalogKeepsExplicitCategories(t *testing.T) {
	c, err := ParseCatalog([]byte("categories: [cs, math, other]\ngermanPrograms: [bwl, vwl]\nmodules:\n  Analysis: math\n"))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}
	if want := []string{"cs", "math", "other"}; !reflect.DeepEqual(c.Categories, want) {
		t.Fatalf("categories = %v", c.Categories)
	}
	if len(c.GermanPrograms) != 2 {
		t.Fatalf("germanPrograms = %v", c.GermanPrograms)
	}
}

func TestParseCatalogRejectsMalformedYAML(t *testing.T) {
	if _, err := ParseCatalog([]byte("modules: [unterminated")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(catalogYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ECTS_CATALOG", path)
	t.Setenv("OCR_LANG", "deu+eng+fra")
	t.Setenv("OCR_DPI", "300")
	t.Setenv("OCR_TIMEOUT_SECONDS", "90")
	t.Setenv("OCR_WORKER_FRACTION", "1.5")
	t.Setenv("LAYOUT_EXTRACTOR", "VERTEX")

	cfg := Load()
	if want := []string{"deu", "eng", "fra"}; !reflect.DeepEqual(cfg.OCR.Languages, want) {
		t.Fatalf("languages = %v", cfg.OCR.Languages)
	}
	if cfg.OCR.DPI != 300 || cfg.OCR.Timeout != 90*time.Second {
		t.Fatalf("ocr = %+v", cfg.OCR)
	}
	if cfg.OCR.WorkerFraction != 0.8 {
		t.Fatalf("out-of-range worker fraction kept: %v", cfg.OCR.WorkerFraction)
	}
	if cfg.LayoutExtractor != LayoutVertex {
		t.Fatalf("layout extractor = %q", cfg.LayoutExtractor)
	}
	if len(cfg.Catalog.Modules) != 4 {
		t.Fatalf("catalogue not loaded: %+v", cfg.Catalog)
	}
	if opts := cfg.OCR.Options(); opts.DPI != 300 || opts.PSM != 6 {
		t.Fatalf("options = %+v", opts)
	}
}

func TestLoadFallsBackOnMissingCatalogue(t *testing.T) {
	t.Setenv("ECTS_CATALOG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LAYOUT_EXTRACTOR", "tables")
	cfg := Load()
	if len(cfg.Catalog.Modules) != 0 || !reflect.DeepEqual(cfg.Catalog.GermanPrograms, []string{"bwl"}) {
		t.Fatalf("catalogue = %+v", cfg.Catalog)
	}
	if cfg.LayoutExtractor != LayoutHOCR {
		t.Fatalf("layout extractor = %q", cfg.LayoutExtractor)
	}
	if cfg.Collection != "documents" {
		t.Fatalf("collection = %q", cfg.Collection)
	}
}

func TestLoadClampsNonPositiveTimeouts(t *testing.T) {
	for _, v := range []string{"0", "-5"} {
		t.Setenv("OCR_TIMEOUT_SECONDS", v)
		t.Setenv("OCR_PAGE_TIMEOUT_SECONDS", v)
		cfg := Load()
		if cfg.OCR.Timeout != 60*time.Second {
			t.Errorf("OCR_TIMEOUT_SECONDS=%s: timeout = %s", v, cfg.OCR.Timeout)
		}
		if cfg.OCR.PageTimeout != 60*time.Second {
			t.Errorf("OCR_PAGE_TIMEOUT_SECONDS=%s: page timeout = %s", v, cfg.OCR.PageTimeout)
		}
	}
}
