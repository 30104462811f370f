package helpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/natefinch/atomic"
	"golang.org/x/text/unicode/norm"
)

// MarshalPretty encodes data as two-space indented JSON without HTML escaping
func MarshalPretty(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SaveJSON atomically saves data as JSON to a file
func SaveJSON(data interface{}, path string) error {
	jsonData, err := MarshalPretty(data)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(jsonData)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// LoadJSON loads JSON data from a file
func LoadJSON(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// EnsureDir ensures a directory exists
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// SanitizeFileComponent normalizes s to NFC and replaces characters that are
// unsafe in file names with underscores
func SanitizeFileComponent(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

// ExportFilename builds {project}_{type}_export_{epochMillis}.{ext}
func ExportFilename(projectName, requirementType, extension string, at time.Time) string {
	return fmt.Sprintf("%s_%s_export_%d.%s",
		SanitizeFileComponent(projectName), requirementType, at.UnixMilli(), extension)
}

// GetOutputPath generates a full output path
func GetOutputPath(outputDir, filename string) string {
	return filepath.Join(outputDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
