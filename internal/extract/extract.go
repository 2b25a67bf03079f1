// Package extract turns a book file into one plain-text string with section
// order preserved. Supported formats: EPUB, PDF and plain text.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"reelflow/internal/util"
)

type Extractor struct {
	root string
}

func New(root string) *Extractor {
	return &Extractor{root: root}
}

// Extract resolves sourcePath under the uploads root and returns its text.
// Every failure wraps util.ErrExtraction; partial output is never returned.
func (e *Extractor) Extract(ctx context.Context, sourcePath string) (string, error) {
	path, err := e.resolve(sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", util.ErrExtraction, err)
	}
	text, err := runWithContext(ctx, func() (string, error) {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".epub":
			return extractEPUB(path)
		case ".pdf":
			return extractPDF(path)
		case ".txt", ".md":
			return extractPlain(path)
		default:
			return "", fmt.Errorf("unsupported source format %q", filepath.Ext(path))
		}
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", util.ErrExtraction, sourcePath, err)
	}
	text = util.SanitizeText(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s: %w", util.ErrExtraction, sourcePath, util.ErrNoExtractableText)
	}
	return text, nil
}

func (e *Extractor) resolve(sourcePath string) (string, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return "", fmt.Errorf("empty source path")
	}
	root, err := filepath.Abs(e.root)
	if err != nil {
		return "", fmt.Errorf("resolve uploads root: %w", err)
	}
	full := sourcePath
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, sourcePath)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("source path %q escapes uploads root", sourcePath)
	}
	st, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("source path %q is a directory", sourcePath)
	}
	return full, nil
}

// runWithContext lets a blocking parser be abandoned once ctx expires. A
// parser panic on a malformed file is returned as an error.
func runWithContext(ctx context.Context, fn func() (string, error)) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("parser panic: %v", r)}
			}
		}()
		text, err := fn()
		done <- result{text: text, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}

func extractPlain(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	return string(b), nil
}
