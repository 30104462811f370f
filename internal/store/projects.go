package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
)

func metadataPath(dir string) string {
	return path.Join(dir, models.MetadataFileName)
}

// ListProjects reads every project's metadata under the working directory,
// newest first. Unreadable projects are logged and left out.
func (s *Store) ListProjects(ctx context.Context) []models.Project {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	folders, err := s.fs.GetFolders(ctx, ".", gateway.Filter{Suffix: models.MetadataFileName})
	if err != nil {
		s.logger.Error("failed to list working directory", "err", err)
		s.dispatch(projectsLoaded{projects: []models.Project{}})
		return []models.Project{}
	}

	projects := []models.Project{}
	for _, folder := range folders {
		if len(folder.Children) == 0 {
			continue
		}
		p, err := s.readMetadata(ctx, folder.Name)
		if err != nil {
			s.logger.Warn("skipping project", "dir", folder.Name, "err", err)
			continue
		}
		projects = append(projects, p)
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})

	s.dispatch(projectsLoaded{projects: projects})
	return cloneState(State{Projects: projects}).Projects
}

func (s *Store) readMetadata(ctx context.Context, dir string) (models.Project, error) {
	raw, err := s.fs.ReadFile(ctx, metadataPath(dir))
	if err != nil {
		return models.Project{}, err
	}
	var p models.Project
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return models.Project{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if p.RequirementCounters == nil {
		p.RequirementCounters = models.NewRequirementCounters()
	}
	p.Dir = dir
	return p, nil
}

// CreateProject creates {name}/.metadata.json and adds the project to the list
func (s *Store) CreateProject(ctx context.Context, name, description, technicalDetails string) (models.Project, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return models.Project{}, fmt.Errorf("invalid project name %q", name)
	}

	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	exists, err := s.fs.FileExists(ctx, name)
	if err != nil {
		return models.Project{}, fmt.Errorf("failed to check project folder: %w", err)
	}
	if exists {
		return models.Project{}, fmt.Errorf("%w: %s", ErrProjectExists, name)
	}

	p := models.Project{
		SchemaVersion:       models.MetadataSchemaVersion,
		ID:                  uuid.NewString(),
		Name:                name,
		Description:         description,
		CreatedAt:           time.Now().UTC(),
		TechnicalDetails:    technicalDetails,
		RequirementCounters: models.NewRequirementCounters(),
		Dir:                 name,
	}

	data, err := helpers.MarshalPretty(p)
	if err != nil {
		return models.Project{}, err
	}
	if err := s.fs.CreateFileWithContent(ctx, metadataPath(name), string(data)); err != nil {
		return models.Project{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	s.dispatch(projectAdded{project: p})
	return cloneProject(p), nil
}

// resolveProject finds a project by id, refreshing the list once on a miss
func (s *Store) resolveProject(ctx context.Context, projectID string) (models.Project, error) {
	s.mu.RLock()
	p := findProject(s.state.Projects, projectID)
	s.mu.RUnlock()
	if p != nil {
		return cloneProject(*p), nil
	}

	for _, candidate := range s.ListProjects(ctx) {
		if candidate.ID == projectID {
			return candidate, nil
		}
	}
	return models.Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
}

// LoadProjectFiles selects a project, lists its folders in canonical order
// and reconciles its requirement counters with what is on disk
func (s *Store) LoadProjectFiles(ctx context.Context, projectID string, filter gateway.Filter) ([]models.Folder, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.dispatch(setLoading{loading: true})
	defer s.dispatch(setLoading{loading: false})

	p, err := s.resolveProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	folders, err := s.fs.GetFolders(ctx, p.Dir, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list project files: %w", err)
	}
	sortFolders(folders)

	s.dispatch(projectFilesLoaded{project: p, folders: folders})

	if _, err := s.SyncRootRequirementCounters(ctx, p.Dir); err != nil {
		s.logger.Warn("failed to sync requirement counters", "project", p.Name, "err", err)
	}

	return s.CurrentProjectFiles(), nil
}

func sortFolders(folders []models.Folder) {
	rank := func(name string) int {
		for i, n := range models.FolderOrder {
			if n == name {
				return i
			}
		}
		return len(models.FolderOrder)
	}
	sort.SliceStable(folders, func(i, j int) bool {
		ri, rj := rank(folders[i].Name), rank(folders[j].Name)
		if ri != rj {
			return ri < rj
		}
		return folders[i].Name < folders[j].Name
	})
}

// UpdateMetadata shallow-merges partial over the project's metadata object
// and persists it. Counters in partial follow UpdateRequirementCounters:
// none may decrease. id and schemaVersion cannot be set. Failures are logged
// and returned.
func (s *Store) UpdateMetadata(ctx context.Context, projectID string, partial map[string]interface{}) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.resolveProject(ctx, projectID)
	if err != nil {
		s.logger.Error("failed to update metadata", "project", projectID, "err", err)
		return err
	}

	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	_, err = s.rewriteMetadata(ctx, p.Dir, func(obj map[string]json.RawMessage) error {
		for key, value := range partial {
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode %q: %w", key, err)
			}

			switch key {
			case "id", "schemaVersion":
				return fmt.Errorf("%w: %s", ErrReadOnlyField, key)
			case "requirementCounters":
				if err := mergeCounters(obj, encoded); err != nil {
					return err
				}
			default:
				obj[key] = encoded
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to update metadata", "project", p.Name, "err", err)
	}
	return err
}

// rewriteMetadata runs one read-modify-write cycle on dir's metadata object
// and publishes the result. Callers hold metaMu.
func (s *Store) rewriteMetadata(ctx context.Context, dir string, mutate func(map[string]json.RawMessage) error) (models.Project, error) {
	raw, err := s.fs.ReadFile(ctx, metadataPath(dir))
	if err != nil {
		return models.Project{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return models.Project{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := mutate(obj); err != nil {
		return models.Project{}, err
	}

	data, err := helpers.MarshalPretty(obj)
	if err != nil {
		return models.Project{}, err
	}

	var p models.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Project{}, fmt.Errorf("merged metadata is not a project: %w", err)
	}
	if p.RequirementCounters == nil {
		p.RequirementCounters = models.NewRequirementCounters()
	}
	p.Dir = dir

	if err := s.fs.CreateFileWithContent(ctx, metadataPath(dir), string(data)); err != nil {
		return models.Project{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	s.dispatch(projectUpdated{project: p})
	return cloneProject(p), nil
}

// mergeCounters raises the stored counters to the encoded values, failing
// with ErrCounterRegression before anything changes if one would decrease
func mergeCounters(obj map[string]json.RawMessage, encoded []byte) error {
	var incoming models.RequirementCounters
	if err := json.Unmarshal(encoded, &incoming); err != nil {
		return fmt.Errorf("failed to parse requirement counters: %w", err)
	}

	counters, err := decodeCounters(obj)
	if err != nil {
		return err
	}
	for t, v := range incoming {
		if _, ok := models.ParseRequirementType(string(t)); !ok {
			return fmt.Errorf("unknown requirement type %q", t)
		}
		if v < counters[t] {
			return fmt.Errorf("%w: %s %d < %d", ErrCounterRegression, t, v, counters[t])
		}
		counters[t] = v
	}
	return encodeCounters(obj, counters)
}
