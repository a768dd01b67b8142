package printing

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
)

// StubRenderer is a PDFRenderer that needs no browser. It emits a minimal,
// valid single page PDF whose content stream carries the document title.
// Use it for development and tests.
type StubRenderer struct {
	// Delay simulates engine latency; the render is abandoned if ctx ends first
	Delay time.Duration
}

// NewStubRenderer creates a new StubRenderer
func NewStubRenderer() *StubRenderer {
	return &StubRenderer{}
}

// Render produces a placeholder PDF for req
func (s *StubRenderer) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	if req == nil || strings.TrimSpace(req.HTML) == "" {
		return nil, NewRenderError(ErrCodeInvalidHTML, "HTML content is empty", nil)
	}
	start := time.Now()

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, NewRenderError(ErrCodeRenderTimeout, "PDF rendering was cancelled", ctx.Err())
		}
	}

	data := minimalPDF(req)
	return &RenderResult{
		PDFData:        data,
		PageCount:      estimatePageCount(data),
		RenderDuration: time.Since(start),
	}, nil
}

// Close is a no-op
func (s *StubRenderer) Close() error {
	return nil
}

func minimalPDF(req *RenderRequest) []byte {
	width, height := req.Format.Dimensions()
	w, h := int(float64(width)*72/25.4), int(float64(height)*72/25.4)
	title := strings.NewReplacer("(", "", ")", "", "\\", "").Replace(req.Title)
	stream := fmt.Sprintf("BT /F1 14 Tf 72 %d Td (%s) Tj ET", h-72, title)

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>", w, h),
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// Ensure StubRenderer implements PDFRenderer
var _ PDFRenderer = (*StubRenderer)(nil)
