package printing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rpgsheets/backend/internal/domain/generation"
	"go.uber.org/zap"
)

// DefaultRenderTimeout is the wall-clock limit for one render
const DefaultRenderTimeout = 30 * time.Second

// RenderOptions controls page layout for RenderToFile
type RenderOptions struct {
	Format          generation.PageFormat
	Orientation     generation.Orientation
	Margins         generation.Margins
	PrintBackground bool
	Title           string
}

// OptionsFromGeneration converts job options to render options
func OptionsFromGeneration(opts generation.GenerationOptions, title string) RenderOptions {
	return RenderOptions{
		Format:          opts.Format,
		Orientation:     opts.Orientation,
		Margins:         opts.Margins,
		PrintBackground: opts.PrintBackground,
		Title:           title,
	}
}

// DocumentRendererConfig configures a DocumentRenderer
type DocumentRendererConfig struct {
	// Timeout is the hard wall-clock limit per render (default: 30s)
	Timeout time.Duration
	Logger  *zap.Logger
}

// DocumentRenderer renders HTML through a PDFRenderer engine and writes the
// result to disk. Files appear atomically: a failed render never leaves a
// partial PDF at the target path.
type DocumentRenderer struct {
	engine  PDFRenderer
	timeout time.Duration
	logger  *zap.Logger
}

// NewDocumentRenderer creates a DocumentRenderer on top of engine
func NewDocumentRenderer(engine PDFRenderer, config *DocumentRendererConfig) *DocumentRenderer {
	if config == nil {
		config = &DocumentRendererConfig{}
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentRenderer{
		engine:  engine,
		timeout: timeout,
		logger:  logger,
	}
}

// Timeout returns the configured render timeout
func (d *DocumentRenderer) Timeout() time.Duration {
	return d.timeout
}

// RenderToFile renders html into a PDF at outputPath and returns its size.
// Errors are *RenderError with code RENDER_TIMEOUT, RENDER_FAILED or
// STORAGE_FAILED.
func (d *DocumentRenderer) RenderToFile(ctx context.Context, html, outputPath string, opts RenderOptions) (int64, error) {
	if outputPath == "" || !filepath.IsAbs(outputPath) {
		return 0, NewRenderError(ErrCodeInvalidOutputPath, "output path must be absolute", nil)
	}

	result, err := d.render(ctx, &RenderRequest{
		HTML:            html,
		Format:          opts.Format,
		Orientation:     opts.Orientation,
		Margins:         opts.Margins,
		PrintBackground: opts.PrintBackground,
		Title:           opts.Title,
		Timeout:         d.timeout,
	})
	if err != nil {
		return 0, err
	}

	size, err := writeFileAtomic(outputPath, result.PDFData)
	if err != nil {
		return 0, err
	}

	d.logger.Info("document rendered",
		zap.String("path", outputPath),
		zap.Int64("bytes", size),
		zap.Int("pages", result.PageCount),
		zap.Duration("duration", result.RenderDuration))

	return size, nil
}

type renderOutcome struct {
	result *RenderResult
	err    error
}

// render runs the engine under the hard timeout. Engines honour ctx
// themselves; the select only guarantees the caller is released on time even
// if an engine does not.
func (d *DocumentRenderer) render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan renderOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- renderOutcome{err: NewRenderError(ErrCodeRenderFailed,
					fmt.Sprintf("rendering engine panicked: %v", r), nil)}
			}
		}()
		result, err := d.engine.Render(ctx, req)
		done <- renderOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if ErrorCode(out.err) == "" {
				return nil, NewRenderError(ErrCodeRenderFailed, "rendering engine failed", out.err)
			}
			return nil, out.err
		}
		if out.result == nil || len(out.result.PDFData) == 0 {
			return nil, NewRenderError(ErrCodeRenderFailed, "rendering engine produced no output", nil)
		}
		return out.result, nil
	case <-ctx.Done():
		d.logger.Warn("render abandoned after timeout", zap.Duration("timeout", d.timeout))
		return nil, NewRenderError(ErrCodeRenderTimeout,
			fmt.Sprintf("PDF rendering timed out after %v", d.timeout), ctx.Err())
	}
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, NewRenderError(ErrCodeStorageFailed, "failed to create output directory", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePrefix+"*"+tempFileExt)
	if err != nil {
		return 0, NewRenderError(ErrCodeStorageFailed, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	n, err := tmp.Write(data)
	if err != nil {
		tmp.Close()
		return 0, NewRenderError(ErrCodeStorageFailed, "failed to write PDF", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, NewRenderError(ErrCodeStorageFailed, "failed to flush PDF", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, NewRenderError(ErrCodeStorageFailed, "failed to close PDF", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return 0, NewRenderError(ErrCodeStorageFailed, "failed to set PDF permissions", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, NewRenderError(ErrCodeStorageFailed, "failed to move PDF into place", err)
	}
	committed = true

	return int64(n), nil
}
