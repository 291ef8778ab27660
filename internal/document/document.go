// Package document loads credit-report text from files, PDFs, or stdin.
package document

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Reader loads report text for analysis. PDFs are converted with the
// pdftotext CLI tool; everything else is read as plain text.
type Reader struct {
	stdin     io.Reader
	pdfToText string
}

// Option customizes Reader construction.
type Option func(*Reader)

// WithPdfToText overrides the pdftotext binary path.
func WithPdfToText(path string) Option {
	return func(r *Reader) { r.pdfToText = path }
}

// NewReader creates a Reader. stdin is consumed when Load is given "-" or an
// empty path.
func NewReader(stdin io.Reader, opts ...Option) *Reader {
	r := &Reader{stdin: stdin, pdfToText: "pdftotext"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns the report text behind the given path. "-" or "" reads stdin.
func (r *Reader) Load(ctx context.Context, path string) (string, error) {
	if path == "" || path == "-" {
		raw, err := io.ReadAll(r.stdin)
		if err != nil {
			return "", eris.Wrap(err, "document: read stdin")
		}
		return string(raw), nil
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return r.extractPDF(ctx, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "document: read %s", path)
	}
	return string(raw), nil
}

// extractPDF runs pdftotext -layout on the given PDF and returns stdout.
func (r *Reader) extractPDF(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, r.pdfToText, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "document: pdftotext failed for %s: %s", path, stderr.String())
	}

	return stdout.String(), nil
}
