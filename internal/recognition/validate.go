package recognition

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const defaultExt = ".jpg"

// Validate checks a submitted file against the extension allow-list and the
// size ceiling and returns the lower-cased extension to store it under.
func (s *Service) Validate(fileName string, size int64) (string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", &ValidationError{Reason: "No filename provided"}
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !slices.Contains(s.opts.AllowedExtensions, ext) {
		if ext == "" {
			return "", &ValidationError{Reason: "File type not allowed: missing extension"}
		}
		return "", &ValidationError{Reason: fmt.Sprintf("File type %s not allowed", ext)}
	}

	if size <= 0 {
		return "", &ValidationError{Reason: "Empty file"}
	}
	if s.opts.MaxUploadSize > 0 && size > s.opts.MaxUploadSize {
		return "", &ValidationError{Reason: "File size exceeds maximum allowed"}
	}
	return ext, nil
}

// NormalizeName trims a person name and puts it in Unicode NFC so that
// visually identical names map to the same person.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
