// Package tesseract implements ocr.Engine on top of libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/ectsflow/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Engine recognizes pages through libtesseract.
type Engine struct {
	dataPath      string
	languages     []string
	clientFactory func() *gosseract.Client
}

// New returns an engine that loads trained data from dataPath
// (the library default when empty). languages is checked by Available.
func New(dataPath string, languages []string) *Engine {
	return &Engine{
		dataPath:      dataPath,
		languages:     append([]string(nil), languages...),
		clientFactory: gosseract.NewClient,
	}
}

func (e *Engine) Available() error {
	if e.dataPath == "" {
		return nil
	}
	info, err := os.Stat(e.dataPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: tessdata directory %s missing", ocr.ErrCapabilityUnavailable, e.dataPath)
	}
	for _, lang := range e.languages {
		trained := filepath.Join(e.dataPath, lang+".traineddata")
		if _, err := os.Stat(trained); err != nil {
			return fmt.Errorf("%w: trained data for %q missing in %s", ocr.ErrCapabilityUnavailable, lang, e.dataPath)
		}
	}
	return nil
}

func (e *Engine) Recognize(ctx context.Context, image []byte, params ocr.Params) (string, error) {
	return e.run(ctx, image, params, (*gosseract.Client).Text)
}

func (e *Engine) RecognizeHOCR(ctx context.Context, image []byte, params ocr.Params) (string, error) {
	return e.run(ctx, image, params, (*gosseract.Client).HOCRText)
}

// run executes fn on a fresh client. libtesseract calls cannot be
// interrupted, so a cancelled context abandons the call and the client is
// closed once it returns.
func (e *Engine) run(ctx context.Context, image []byte, params ocr.Params, fn func(*gosseract.Client) (string, error)) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		c := e.clientFactory()
		defer c.Close()
		if err := e.configure(c, image, params); err != nil {
			done <- outcome{err: err}
			return
		}
		text, err := fn(c)
		if err != nil {
			err = fmt.Errorf("recognize text: %w", err)
		}
		done <- outcome{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case o := <-done:
		return o.text, o.err
	}
}

func (e *Engine) configure(c *gosseract.Client, image []byte, params ocr.Params) error {
	if e.dataPath != "" {
		if err := c.SetTessdataPrefix(e.dataPath); err != nil {
			return fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if len(params.Languages) > 0 {
		if err := c.SetLanguage(params.Languages...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(params.PSM)); err != nil {
		return fmt.Errorf("set page segmentation mode: %w", err)
	}
	if params.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(params.DPI)); err != nil {
			return fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	return nil
}
