package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"supportdesk_back/apperr"
)

// CommandRunner executes an external tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// TextExtractor turns raw upload bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string, filename string) (string, error)
}

// Extractor decodes text formats directly and shells out to pdftotext for PDFs.
type Extractor struct {
	runner  CommandRunner
	pdfTool string
	tempDir string
}

func NewExtractor() *Extractor {
	return NewExtractorWithRunner(execRunner{})
}

func NewExtractorWithRunner(runner CommandRunner) *Extractor {
	return &Extractor{runner: runner, pdfTool: "pdftotext"}
}

// PDFAvailable reports whether the PDF tool is on PATH.
func (e *Extractor) PDFAvailable() bool {
	if e == nil {
		return false
	}
	_, err := exec.LookPath(e.pdfTool)
	return err == nil
}

func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string, filename string) (string, error) {
	if e == nil {
		return "", fmt.Errorf("knowledge: extractor is not configured: %w", apperr.ErrExtraction)
	}

	var (
		text string
		err  error
	)
	if isPDF(mimeType, filename) {
		text, err = e.extractPDF(ctx, data)
	} else {
		text, err = decodeText(data)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("knowledge: no text could be extracted from %q: %w", filename, apperr.ErrExtraction)
	}
	return text, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp(e.tempDir, "ingest-*.pdf")
	if err != nil {
		return "", fmt.Errorf("knowledge: create temp pdf: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("knowledge: write temp pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("knowledge: close temp pdf: %w", err)
	}

	out, err := e.runner.Run(ctx, e.pdfTool, "-layout", tmp.Name(), "-")
	if err != nil {
		return "", fmt.Errorf("knowledge: pdftotext failed: %v: %w", err, apperr.ErrExtraction)
	}
	return strings.ToValidUTF8(string(out), ""), nil
}

func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("knowledge: content is not valid UTF-8: %w", apperr.ErrExtraction)
	}
	return string(data), nil
}

func isPDF(mimeType, filename string) bool {
	if strings.EqualFold(strings.TrimSpace(mimeType), "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
