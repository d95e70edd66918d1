// Package render rasterizes single PDF pages to PNG via poppler-utils.
//
// The tools are invoked as external processes: pdftoppm is the fast path,
// pdftocairo the fallback when pdftoppm produces no usable output. Callers
// treat the renderer as a single blocking, fallible call.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrNoOutput is returned when both poppler tools ran but produced no image.
var ErrNoOutput = errors.New("renderer produced no output")

// Renderer rasterizes one page of a document into a PNG bitmap.
type Renderer interface {
	// Render renders the zero-based pageIndex of the document at path
	// at the given resolution. The returned bytes are an encoded PNG.
	Render(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error)
}

// Poppler renders pages by shelling out to poppler-utils.
type Poppler struct{}

// NewPoppler creates a poppler-backed renderer.
func NewPoppler() *Poppler {
	return &Poppler{}
}

// Render renders a single page to PNG. It tries pdftoppm first and falls
// back to pdftocairo when the fast path yields nothing.
func (p *Poppler) Render(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("document not found: %w", err)
	}

	png, fastErr := renderWith(ctx, "pdftoppm", path, pageIndex, dpi)
	if fastErr == nil && len(png) > 0 {
		return png, nil
	}

	png, slowErr := renderWith(ctx, "pdftocairo", path, pageIndex, dpi)
	if slowErr == nil && len(png) > 0 {
		return png, nil
	}

	if fastErr == nil {
		fastErr = ErrNoOutput
	}
	if slowErr == nil {
		slowErr = ErrNoOutput
	}
	return nil, fmt.Errorf("pdftoppm: %v; pdftocairo fallback: %w", fastErr, slowErr)
}

// renderWith runs one poppler tool against a single page.
// Both pdftoppm and pdftocairo share the flag surface used here.
func renderWith(ctx context.Context, tool, path string, pageIndex, dpi int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "pdfdeck-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// Poppler pages are 1-indexed.
	pageStr := fmt.Sprintf("%d", pageIndex+1)
	cmd := exec.CommandContext(ctx, tool,
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", fmt.Sprintf("%d", dpi),
		"-singlefile",
		path,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w (output: %s)", tool, err, string(output))
	}

	// -singlefile creates <prefix>.png with no page suffix.
	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoOutput
		}
		return nil, fmt.Errorf("failed to read rendered image: %w", err)
	}

	return data, nil
}
