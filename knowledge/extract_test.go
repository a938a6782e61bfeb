package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk_back/apperr"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

func TestExtractPlainText(t *testing.T) {
	extractor := NewExtractorWithRunner(&mockRunner{})
	text, err := extractor.Extract(context.Background(), []byte("\xef\xbb\xbfRetouren binnen 30 dagen"), "text/plain", "policy.txt")
	require.NoError(t, err)
	assert.Equal(t, "Retouren binnen 30 dagen", text)
}

func TestExtractPDFUsesPdftotext(t *testing.T) {
	runner := &mockRunner{output: []byte("Page one text\n")}
	extractor := NewExtractorWithRunner(runner)

	text, err := extractor.Extract(context.Background(), []byte("%PDF-1.4"), "application/pdf", "terms.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Page one text\n", text)
	assert.Equal(t, "pdftotext", runner.name)
	require.Len(t, runner.args, 3)
	assert.Equal(t, "-layout", runner.args[0])
	assert.Equal(t, "-", runner.args[2])
}

func TestExtractPDFDetectedByExtension(t *testing.T) {
	runner := &mockRunner{output: []byte("text")}
	extractor := NewExtractorWithRunner(runner)

	_, err := extractor.Extract(context.Background(), []byte("%PDF"), "application/octet-stream", "SCAN.PDF")
	require.NoError(t, err)
	assert.Equal(t, "pdftotext", runner.name)
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name     string
		runner   *mockRunner
		data     []byte
		mimeType string
		filename string
	}{
		{"whitespace only text", &mockRunner{}, []byte(" \n\t "), "text/plain", "a.txt"},
		{"scanned pdf", &mockRunner{output: []byte("\f\n")}, []byte("%PDF"), "application/pdf", "a.pdf"},
		{"tool failure", &mockRunner{err: errors.New("exit status 1")}, []byte("%PDF"), "application/pdf", "a.pdf"},
		{"invalid utf8", &mockRunner{}, []byte{0xff, 0xfe, 0x00}, "text/csv", "a.csv"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			extractor := NewExtractorWithRunner(tc.runner)
			_, err := extractor.Extract(context.Background(), tc.data, tc.mimeType, tc.filename)
			assert.ErrorIs(t, err, apperr.ErrExtraction)
		})
	}
}
