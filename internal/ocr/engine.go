package ocr

import "context"

// Params carries per-call recognition settings.
type Params struct {
	Languages []string
	PSM       int
	DPI       int
}

// Engine recognizes text on a single rendered page.
type Engine interface {
	// Available reports whether the engine can run in this process.
	Available() error
	// Recognize returns the plain text of one page image.
	Recognize(ctx context.Context, image []byte, params Params) (string, error)
	// RecognizeHOCR returns the hOCR markup of one page image.
	RecognizeHOCR(ctx context.Context, image []byte, params Params) (string, error)
}
