package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
)

// CreateOptions controls CreateFile
type CreateOptions struct {
	// FeatureFile writes {TYPE}{Number}-feature.json instead of a new base file
	FeatureFile bool

	// Number is the requirement a feature file belongs to
	Number int
}

// DocumentPath joins folder and file under the selected project
func (s *Store) DocumentPath(folder, file string) (string, error) {
	p, err := s.selectedProject()
	if err != nil {
		return "", err
	}
	return path.Join(p.Dir, folder, file), nil
}

// FolderPath returns the selected project's folder for a requirement type
func (s *Store) FolderPath(t models.RequirementType) (string, error) {
	p, err := s.selectedProject()
	if err != nil {
		return "", err
	}
	return path.Join(p.Dir, string(t)), nil
}

// ReadFile reads and parses one document and makes it the selected content
func (s *Store) ReadFile(ctx context.Context, relativePath string) (models.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.fs.ReadFile(ctx, relativePath)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", relativePath, err)
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return models.Document{}, fmt.Errorf("failed to parse %s: %w", relativePath, err)
	}

	s.dispatch(fileContentLoaded{document: doc})
	return doc, nil
}

// BulkReadFiles reads every file of one folder of the selected project.
// Files that fail are logged and dropped; a missing folder leaves state alone.
func (s *Store) BulkReadFiles(ctx context.Context, folderKey string, filter gateway.Filter, keys ...string) []models.FileEntry {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.selectedProject()
	if err != nil {
		s.logger.Error("bulk read without a project", "folder", folderKey)
		return nil
	}

	folders, err := s.fs.GetFolders(ctx, p.Dir, filter)
	if err != nil {
		s.logger.Error("failed to list project folders", "project", p.Name, "err", err)
		return nil
	}

	var folder *models.Folder
	for i := range folders {
		if folders[i].Name == folderKey {
			folder = &folders[i]
			break
		}
	}
	if folder == nil {
		s.logger.Error("folder not found", "project", p.Name, "folder", folderKey)
		return nil
	}

	entries := []models.FileEntry{}
	for _, name := range folder.Children {
		raw, err := s.fs.ReadFileChunk(ctx, path.Join(p.Dir, folderKey, name), keys)
		if err != nil {
			s.logger.Warn("skipping unreadable file", "file", name, "err", err)
			continue
		}
		var doc models.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			s.logger.Warn("skipping malformed file", "file", name, "err", err)
			continue
		}
		entries = append(entries, models.FileEntry{FolderName: folderKey, FileName: name, Content: doc})
	}

	s.dispatch(fileContentsLoaded{entries: entries})
	return append([]models.FileEntry(nil), entries...)
}

// CreateFile appends a numbered file to folderPath. For base files the
// project's counter for the folder's type is raised to the number used, in
// the same call, and that number is returned.
func (s *Store) CreateFile(ctx context.Context, folderPath string, content interface{}, opts CreateOptions) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := helpers.MarshalPretty(content)
	if err != nil {
		return 0, err
	}

	if opts.FeatureFile {
		n, err := s.fs.AppendFile(ctx, folderPath, string(data), true, opts.Number)
		if err != nil {
			return 0, fmt.Errorf("failed to create feature file: %w", err)
		}
		return n, nil
	}

	reqType, ok := models.ParseRequirementType(path.Base(folderPath))
	if !ok || !reqType.IsFolderType() {
		return 0, fmt.Errorf("%s is not a requirement folder", folderPath)
	}
	dir := path.Dir(folderPath)

	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	current, err := s.readMetadata(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read project counters: %w", err)
	}

	n, err := s.fs.AppendFile(ctx, folderPath, string(data), false, current.RequirementCounters[reqType])
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := s.raiseCountersLocked(ctx, dir, models.RequirementCounters{reqType: n}, true); err != nil {
		return n, fmt.Errorf("created %s but failed to persist counters: %w", gateway.BaseFileName(string(reqType), n), err)
	}
	return n, nil
}

// UpdateFile overwrites relativePath with doc and makes doc the selected content
func (s *Store) UpdateFile(ctx context.Context, relativePath string, doc models.Document) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := helpers.MarshalPretty(doc)
	if err != nil {
		return err
	}
	if err := s.fs.CreateFileWithContent(ctx, relativePath, string(data)); err != nil {
		return fmt.Errorf("failed to update %s: %w", relativePath, err)
	}

	s.dispatch(fileContentLoaded{document: doc})
	return nil
}

// ArchiveFile archives relativePath. Cached listings are not refreshed.
func (s *Store) ArchiveFile(ctx context.Context, relativePath string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.fs.ArchiveFile(ctx, relativePath); err != nil {
		return fmt.Errorf("failed to archive %s: %w", relativePath, err)
	}
	return nil
}

// CheckAssociations returns the ids of business processes in the selected
// project that reference fileName from folderName (BRD or PRD)
func (s *Store) CheckAssociations(ctx context.Context, folderName, fileName string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var key string
	switch models.RequirementType(folderName) {
	case models.TypeBRD:
		key = "selectedBRDs"
	case models.TypePRD:
		key = "selectedPRDs"
	default:
		return nil, nil
	}

	p, err := s.selectedProject()
	if err != nil {
		return nil, err
	}

	folders, err := s.fs.GetFolders(ctx, p.Dir, gateway.BaseFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to list project folders: %w", err)
	}

	targetID := gateway.RequirementID(fileName)
	var associated []string
	for _, folder := range folders {
		if folder.Name != string(models.TypeBP) {
			continue
		}
		for _, name := range folder.Children {
			raw, err := s.fs.ReadFileChunk(ctx, path.Join(p.Dir, folder.Name, name), []string{key})
			if err != nil {
				s.logger.Warn("skipping unreadable business process", "file", name, "err", err)
				continue
			}
			var refs map[string][]string
			if err := json.Unmarshal([]byte(raw), &refs); err != nil {
				s.logger.Warn("skipping malformed business process", "file", name, "err", err)
				continue
			}
			for _, ref := range refs[key] {
				if ref == fileName || ref == targetID {
					associated = append(associated, gateway.RequirementID(name))
					break
				}
			}
		}
	}
	return associated, nil
}
