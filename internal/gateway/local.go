package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/natefinch/atomic"

	"req-studio/internal/models"
)

// LocalFS implements FileSystem on the local disk under one root directory
type LocalFS struct {
	root  string
	locks *PathLocks
}

// NewLocalFS creates the working directory if needed and returns a gateway rooted at it
func NewLocalFS(root string) (*LocalFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	return &LocalFS{root: abs, locks: NewPathLocks()}, nil
}

// Root returns the absolute working directory
func (l *LocalFS) Root() string {
	return l.root
}

func (l *LocalFS) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	full := filepath.Join(l.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(l.root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	return full, nil
}

func notFound(err error, rel string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return err
}

// ReadFile returns the content of path
func (l *LocalFS) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", notFound(err, path)
	}
	return string(data), nil
}

// CreateFileWithContent atomically replaces path with content, creating parent directories
func (l *LocalFS) CreateFileWithContent(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := l.resolve(path)
	if err != nil {
		return err
	}

	unlock := l.locks.Lock(full)
	defer unlock()

	return writeAtomic(full, content)
}

func writeAtomic(full, content string) error {
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := atomic.WriteFile(full, strings.NewReader(content)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// FileExists reports whether path exists
func (l *LocalFS) FileExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// GetFolders lists the visible subdirectories of path with their matching files
func (l *LocalFS) GetFolders(ctx context.Context, path string, filter Filter) ([]models.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, notFound(err, path)
	}

	var folders []models.Folder
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		files, err := os.ReadDir(filepath.Join(full, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read folder %s: %w", entry.Name(), err)
		}

		children := []string{}
		for _, f := range files {
			if f.IsDir() || !filter.Match(f.Name()) {
				continue
			}
			children = append(children, f.Name())
		}
		sort.Strings(children)

		folders = append(folders, models.Folder{Name: entry.Name(), Children: children})
	}

	return folders, nil
}

// ArchiveFile renames path to its archived form
func (l *LocalFS) ArchiveFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if IsArchived(path) {
		return fmt.Errorf("%w: %s", ErrAlreadyArchived, path)
	}
	full, err := l.resolve(path)
	if err != nil {
		return err
	}

	unlock := l.locks.Lock(full)
	defer unlock()

	if _, err := os.Stat(full); err != nil {
		return notFound(err, path)
	}

	target := ArchivedName(full)
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyArchived, path)
	}

	if err := os.Rename(full, target); err != nil {
		return fmt.Errorf("failed to archive file: %w", err)
	}
	return nil
}

// AppendFile writes a new numbered file into folder. A base file takes the
// first free number above currentCount and that number is returned; a feature
// file is written for currentCount itself.
func (l *LocalFS) AppendFile(ctx context.Context, folder, content string, featureFile bool, currentCount int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	full, err := l.resolve(folder)
	if err != nil {
		return 0, err
	}
	prefix := filepath.Base(full)

	unlock := l.locks.Lock(full)
	defer unlock()

	if featureFile {
		if currentCount < 1 {
			return 0, fmt.Errorf("feature file needs an existing requirement number, got %d", currentCount)
		}
		if err := writeAtomic(filepath.Join(full, FeatureFileName(prefix, currentCount)), content); err != nil {
			return 0, err
		}
		return currentCount, nil
	}

	n := currentCount + 1
	for taken(filepath.Join(full, BaseFileName(prefix, n))) {
		n++
	}

	if err := writeAtomic(filepath.Join(full, BaseFileName(prefix, n)), content); err != nil {
		return 0, err
	}
	return n, nil
}

func taken(path string) bool {
	for _, p := range []string{path, ArchivedName(path)} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// ReadFileChunk returns a JSON object holding only the requested top-level
// keys of path. With no keys the whole file is returned.
func (l *LocalFS) ReadFileChunk(ctx context.Context, path string, keys []string) (string, error) {
	content, err := l.ReadFile(ctx, path)
	if err != nil || len(keys) == 0 {
		return content, err
	}
	return ProjectKeys([]byte(content), keys)
}

// ProjectKeys keeps the listed top-level keys of a JSON object, in file order
func ProjectKeys(data []byte, keys []string) (string, error) {
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		if !wanted[string(key)] {
			return nil
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		buf.WriteByte('"')
		buf.Write(key)
		buf.WriteString(`":`)
		if dataType == jsonparser.String {
			buf.WriteByte('"')
			buf.Write(value)
			buf.WriteByte('"')
		} else {
			buf.Write(value)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse JSON object: %w", err)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}
