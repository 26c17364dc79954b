package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Renderer rasterises document pages.
type Renderer interface {
	// Available reports whether the renderer can run in this process.
	Available() error
	// PageCount returns the number of pages in the document.
	PageCount(path string) (int, error)
	// Render returns one PNG per page, in page order. lastPage <= 0 renders
	// every page.
	Render(ctx context.Context, path string, dpi, lastPage int) ([][]byte, error)
}

// PopplerRenderer renders pages with poppler's pdftoppm.
type PopplerRenderer struct {
	binDir string
}

// NewPopplerRenderer returns a renderer that runs pdftoppm from binDir, or
// from PATH when binDir is empty.
func NewPopplerRenderer(binDir string) *PopplerRenderer {
	return &PopplerRenderer{binDir: binDir}
}

func (r *PopplerRenderer) command() string {
	if r.binDir == "" {
		return "pdftoppm"
	}
	return filepath.Join(r.binDir, "pdftoppm")
}

func (r *PopplerRenderer) Available() error {
	if _, err := exec.LookPath(r.command()); err != nil {
		return fmt.Errorf("%w: pdftoppm not found (%s): %v", ErrCapabilityUnavailable, r.command(), err)
	}
	return nil
}

func (r *PopplerRenderer) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get page count: %v", ErrRenderFailed, err)
	}
	return n, nil
}

func (r *PopplerRenderer) Render(ctx context.Context, path string, dpi, lastPage int) ([][]byte, error) {
	tempDir, err := os.MkdirTemp("", "ocr-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	args := []string{"-r", strconv.Itoa(dpi), "-png"}
	if lastPage > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(lastPage))
	}
	args = append(args, path, filepath.Join(tempDir, "page"))

	cmd := exec.CommandContext(ctx, r.command(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: pdftoppm %s: %v: %s", ErrRenderFailed, filepath.Base(path), err, strings.TrimSpace(stderr.String()))
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}
	type renderedPage struct {
		number int
		name   string
	}
	var rendered []renderedPage
	for _, e := range entries {
		if n, ok := pageNumber(e.Name()); ok {
			rendered = append(rendered, renderedPage{number: n, name: e.Name()})
		}
	}
	sort.Slice(rendered, func(i, j int) bool { return rendered[i].number < rendered[j].number })

	pages := make([][]byte, 0, len(rendered))
	for _, p := range rendered {
		data, err := os.ReadFile(filepath.Join(tempDir, p.name))
		if err != nil {
			return nil, fmt.Errorf("failed to read rendered page %d: %w", p.number, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

// pageNumber parses pdftoppm output names such as page-1.png or page-07.png.
func pageNumber(name string) (int, bool) {
	trimmed, ok := strings.CutPrefix(name, "page-")
	if !ok {
		return 0, false
	}
	trimmed, ok = strings.CutSuffix(trimmed, ".png")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return n, true
}
