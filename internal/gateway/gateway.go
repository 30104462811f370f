// Package gateway is the only code that touches the disk. It exposes the
// working directory as a blob store keyed by slash-separated relative paths.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"req-studio/internal/models"
)

var (
	// ErrNotFound is returned when a file or folder does not exist
	ErrNotFound = errors.New("not found")

	// ErrOutsideWorkspace is returned for paths escaping the working directory
	ErrOutsideWorkspace = errors.New("path is outside the working directory")

	// ErrAlreadyArchived is returned when archiving an archived file
	ErrAlreadyArchived = errors.New("file is already archived")
)

const (
	// BaseSuffix marks a requirement's primary document
	BaseSuffix = "-base.json"

	// FeatureSuffix marks a requirement's user story file
	FeatureSuffix = "-feature.json"

	archivedSuffix = "-archived.json"
)

// FileSystem is the capability set the stores consume
type FileSystem interface {
	ReadFile(ctx context.Context, path string) (string, error)
	CreateFileWithContent(ctx context.Context, path, content string) error
	FileExists(ctx context.Context, path string) (bool, error)
	GetFolders(ctx context.Context, path string, filter Filter) ([]models.Folder, error)
	ArchiveFile(ctx context.Context, path string) error
	AppendFile(ctx context.Context, folder, content string, featureFile bool, currentCount int) (int, error)
	ReadFileChunk(ctx context.Context, path string, keys []string) (string, error)
}

// Filter selects which children GetFolders reports.
// An empty Suffix matches every visible file.
type Filter struct {
	Suffix          string
	IncludeArchived bool
}

// BaseFiles matches active base files
var BaseFiles = Filter{Suffix: BaseSuffix}

// AllBaseFiles matches base files including archived ones
var AllBaseFiles = Filter{Suffix: BaseSuffix, IncludeArchived: true}

// FeatureFiles matches feature files, archived ones included
var FeatureFiles = Filter{Suffix: FeatureSuffix, IncludeArchived: true}

// Match reports whether name passes the filter
func (f Filter) Match(name string) bool {
	if IsArchived(name) {
		if !f.IncludeArchived {
			return false
		}
		name = UnarchivedName(name)
	}
	if f.Suffix == "" {
		return !strings.HasPrefix(name, ".")
	}
	return strings.HasSuffix(name, f.Suffix)
}

// PadID left-pads n with zeros to width 2
func PadID(n int) string {
	return fmt.Sprintf("%02d", n)
}

// BaseFileName returns {prefix}{NN}-base.json
func BaseFileName(prefix string, n int) string {
	return prefix + PadID(n) + BaseSuffix
}

// FeatureFileName returns {prefix}{NN}-feature.json
func FeatureFileName(prefix string, n int) string {
	return prefix + PadID(n) + FeatureSuffix
}

// FeatureFileFor returns the feature file sibling of a base file name
func FeatureFileFor(baseName string) string {
	return strings.TrimSuffix(UnarchivedName(baseName), BaseSuffix) + FeatureSuffix
}

// IsArchived reports whether name carries the archived marker
func IsArchived(name string) bool {
	return strings.HasSuffix(name, archivedSuffix)
}

// ArchivedName returns the archived form of name
func ArchivedName(name string) string {
	return strings.TrimSuffix(name, ".json") + archivedSuffix
}

// UnarchivedName strips the archived marker from name
func UnarchivedName(name string) string {
	if !IsArchived(name) {
		return name
	}
	return strings.TrimSuffix(name, archivedSuffix) + ".json"
}

// RequirementID returns the id part of a file name (BRD01-base.json -> BRD01)
func RequirementID(name string) string {
	if i := strings.IndexByte(name, '-'); i > 0 {
		return name[:i]
	}
	return strings.TrimSuffix(name, ".json")
}

// ParseNumber returns the numeric part of id after prefix (PRD07 -> 7)
func ParseNumber(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
