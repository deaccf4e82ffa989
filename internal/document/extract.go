// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxChars caps the extracted text so a large book does not blow the
// model's context window.
const DefaultMaxChars = 24000

var (
	// ErrUnsupported is returned for file types other than PDF and text.
	ErrUnsupported = errors.New("document: unsupported file type")

	// ErrNoText is returned when a document has no extractable text, such
	// as a scanned PDF.
	ErrNoText = errors.New("document: no extractable text")
)

// Kind is a supported document type.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindText
)

var pdfMagic = []byte("%PDF-")

// Detect classifies a document by content type, extension and magic bytes.
func Detect(name, contentType string, data []byte) Kind {
	if bytes.HasPrefix(data, pdfMagic) {
		return KindPDF
	}

	mt, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mt == "application/pdf":
		return KindPDF
	case strings.HasPrefix(mt, "text/"):
		return KindText
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".txt", ".md", ".markdown", ".text":
		return KindText
	}
	return KindUnknown
}

// Extract returns the text of a document, truncated to DefaultMaxChars runes.
func Extract(name, contentType string, data []byte) (string, error) {
	return ExtractLimit(name, contentType, data, DefaultMaxChars)
}

// ExtractLimit is Extract with an explicit rune limit. maxChars <= 0 means
// no limit.
func ExtractLimit(name, contentType string, data []byte, maxChars int) (string, error) {
	var (
		text string
		err  error
	)
	switch Detect(name, contentType, data) {
	case KindPDF:
		text, err = extractPDF(data)
	case KindText:
		text, err = extractText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if err != nil {
		return "", err
	}

	text = normalize(text)
	if text == "" {
		return "", ErrNoText
	}
	return truncate(text, maxChars), nil
}

func extractText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupported)
	}
	return string(data), nil
}

// extractPDF reads every page's text. The parser panics on some malformed
// files, so panics are turned into errors.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("document: malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("document: open PDF: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("document: read PDF text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("document: read PDF text: %w", err)
	}
	return string(b), nil
}

// normalize trims trailing space on each line and collapses runs of blank
// lines.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f\v\x00")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}
