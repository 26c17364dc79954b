package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/ectsflow/internal/ects"
	"github.com/Lllllllleong/ectsflow/internal/gcp"
	"github.com/Lllllllleong/ectsflow/internal/ocr"
)

const (
	catalogPathEnv = "ECTS_CATALOG"

	LayoutHOCR   = "hocr"
	LayoutVertex = "vertex"
)

// Config is read once at cold start and never reloaded.
type Config struct {
	ProjectID        string
	UploadBucket     string
	CacheBucket      string
	Collection       string
	WorkflowID       string
	WorkflowLocation string
	VertexRegion     string
	LayoutExtractor  string

	OCR     OCRConfig
	Catalog Catalog
}

// OCRConfig holds the recognition knobs.
type OCRConfig struct {
	TessdataPrefix string
	PopplerPath    string
	Languages      []string
	PSM            int
	DPI            int
	Timeout        time.Duration
	PageTimeout    time.Duration
	WorkerFraction float64
}

// Options converts the knobs to pipeline options.
func (c OCRConfig) Options() ocr.Options {
	return ocr.Options{
		DPI:            c.DPI,
		PSM:            c.PSM,
		Languages:      c.Languages,
		PageTimeout:    c.PageTimeout,
		WorkerFraction: c.WorkerFraction,
	}
}

// Catalog is the admission catalogue: module categories, the university
// whitelist and the programs evaluated with German certificates.
type Catalog struct {
	Modules        ects.ModuleMap `yaml:"modules"`
	Categories     []string       `yaml:"categories"`
	Whitelist      []string       `yaml:"whitelist"`
	GermanPrograms []string       `yaml:"germanPrograms"`
}

// Load reads the environment and, when ECTS_CATALOG is set, the catalogue
// file. An unreadable catalogue is logged and replaced by the defaults.
func Load() Config {
	defaults := ocr.DefaultOptions()
	cfg := Config{
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		UploadBucket:     gcp.GetEnv("UPLOAD_BUCKET", ""),
		CacheBucket:      gcp.GetEnv("OCR_CACHE_BUCKET", ""),
		Collection:       gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "europe-west3"),
		VertexRegion:     gcp.GetEnv("VERTEX_AI_REGION", "europe-west3"),
		LayoutExtractor:  strings.ToLower(gcp.GetEnv("LAYOUT_EXTRACTOR", LayoutHOCR)),
		OCR: OCRConfig{
			TessdataPrefix: gcp.GetEnv("TESSDATA_PREFIX", ""),
			PopplerPath:    gcp.GetEnv("POPPLER_PATH", ""),
			Languages:      splitLanguages(gcp.GetEnv("OCR_LANG", "deu+eng")),
			PSM:            gcp.GetEnvInt("OCR_PSM", defaults.PSM),
			DPI:            gcp.GetEnvInt("OCR_DPI", defaults.DPI),
			Timeout:        time.Duration(gcp.GetEnvInt("OCR_TIMEOUT_SECONDS", 60)) * time.Second,
			PageTimeout:    time.Duration(gcp.GetEnvInt("OCR_PAGE_TIMEOUT_SECONDS", 60)) * time.Second,
			WorkerFraction: gcp.GetEnvFloat("OCR_WORKER_FRACTION", defaults.WorkerFraction),
		},
		Catalog: defaultCatalog(),
	}

	if cfg.LayoutExtractor != LayoutHOCR && cfg.LayoutExtractor != LayoutVertex {
		slog.Warn("Unknown layout extractor, using hocr.", "value", cfg.LayoutExtractor)
		cfg.LayoutExtractor = LayoutHOCR
	}
	if cfg.OCR.DPI <= 0 {
		cfg.OCR.DPI = defaults.DPI
	}
	if cfg.OCR.Timeout <= 0 {
		cfg.OCR.Timeout = ects.DefaultTimeout
	}
	if cfg.OCR.PageTimeout <= 0 {
		cfg.OCR.PageTimeout = defaults.PageTimeout
	}
	if cfg.OCR.WorkerFraction <= 0 || cfg.OCR.WorkerFraction > 1 {
		cfg.OCR.WorkerFraction = defaults.WorkerFraction
	}

	if path := os.Getenv(catalogPathEnv); path != "" {
		catalog, err := LoadCatalog(path)
		if err != nil {
			slog.Error("Cannot load catalogue, falling back to defaults.", "path", path, "error", err)
		} else {
			cfg.Catalog = catalog
		}
	}
	return cfg
}

// LoadCatalog parses a YAML catalogue. Missing categories are derived from
// the module map in order of first appearance.
func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read catalogue: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog is LoadCatalog over raw YAML.
func ParseCatalog(raw []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse catalogue: %w", err)
	}
	if len(catalog.Categories) == 0 {
		catalog.Categories = categoriesOf(catalog.Modules)
	}
	if len(catalog.GermanPrograms) == 0 {
		catalog.GermanPrograms = defaultCatalog().GermanPrograms
	}
	return catalog, nil
}

func categoriesOf(modules ects.ModuleMap) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range modules {
		if m.Category == "" || seen[m.Category] {
			continue
		}
		seen[m.Category] = true
		out = append(out, m.Category)
	}
	return out
}

func splitLanguages(v string) []string {
	var langs []string
	for _, l := range strings.Split(v, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		return ocr.DefaultOptions().Languages
	}
	return langs
}

func defaultCatalog() Catalog {
	return Catalog{GermanPrograms: []string{"bwl"}}
}
