package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"req-studio/internal/gateway"
	"req-studio/internal/models"
)

// GetNextRequirementID returns the cached counter for t plus one. Nothing is
// persisted; follow up with UpdateRequirementCounters once the id is used.
func (s *Store) GetNextRequirementID(t models.RequirementType) (int, error) {
	p, err := s.selectedProject()
	if err != nil {
		return 0, err
	}
	return p.RequirementCounters[t] + 1, nil
}

// UpdateRequirementCounters persists new maxima for the selected project.
// Any value below the stored counter fails with ErrCounterRegression and
// nothing is written.
func (s *Store) UpdateRequirementCounters(ctx context.Context, partial models.RequirementCounters) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.selectedProject()
	if err != nil {
		return err
	}

	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	_, err = s.raiseCountersLocked(ctx, p.Dir, partial, true)
	return err
}

// AllocateRequirementID reserves and persists the next id for t in one step
func (s *Store) AllocateRequirementID(ctx context.Context, t models.RequirementType) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.selectedProject()
	if err != nil {
		return 0, err
	}

	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	var next int
	_, err = s.rewriteMetadata(ctx, p.Dir, func(obj map[string]json.RawMessage) error {
		counters, err := decodeCounters(obj)
		if err != nil {
			return err
		}
		next = counters[t] + 1
		counters[t] = next
		return encodeCounters(obj, counters)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", t, err)
	}
	return next, nil
}

// SyncRootRequirementCounters raises each counter of the project in
// projectDir to the highest id found on disk. Archived files count, since
// their ids were issued. Counters never go down.
func (s *Store) SyncRootRequirementCounters(ctx context.Context, projectDir string) (models.RequirementCounters, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	folders, err := s.fs.GetFolders(ctx, projectDir, gateway.Filter{IncludeArchived: true})
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	observed := models.RequirementCounters{}
	raise := func(t models.RequirementType, n int) {
		if n > observed[t] {
			observed[t] = n
		}
	}

	for _, folder := range folders {
		reqType, ok := models.ParseRequirementType(folder.Name)
		if !ok || !reqType.IsFolderType() {
			continue
		}
		for _, name := range folder.Children {
			switch {
			case gateway.AllBaseFiles.Match(name):
				active := gateway.UnarchivedName(name)
				if n, ok := gateway.ParseNumber(gateway.RequirementID(active), string(reqType)); ok {
					raise(reqType, n)
				}
			case reqType == models.TypePRD && gateway.FeatureFiles.Match(name):
				us, task := s.scanFeatureIDs(ctx, path.Join(projectDir, folder.Name, name))
				raise(models.TypeUS, us)
				raise(models.TypeTask, task)
			}
		}
	}

	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	return s.raiseCountersLocked(ctx, projectDir, observed, false)
}

func (s *Store) scanFeatureIDs(ctx context.Context, featurePath string) (maxUS, maxTask int) {
	raw, err := s.fs.ReadFile(ctx, featurePath)
	if err != nil {
		s.logger.Warn("skipping unreadable feature file", "file", featurePath, "err", err)
		return 0, 0
	}
	var ff models.FeatureFile
	if err := json.Unmarshal([]byte(raw), &ff); err != nil {
		s.logger.Warn("skipping malformed feature file", "file", featurePath, "err", err)
		return 0, 0
	}

	stories := append(append([]models.UserStory{}, ff.Features...), ff.ArchivedFeatures...)
	for _, story := range stories {
		if n, ok := gateway.ParseNumber(story.ID, string(models.TypeUS)); ok && n > maxUS {
			maxUS = n
		}
		for _, task := range append(append([]models.Task{}, story.Tasks...), story.ArchivedTasks...) {
			if n, ok := gateway.ParseNumber(task.ID, string(models.TypeTask)); ok && n > maxTask {
				maxTask = n
			}
		}
	}
	return maxUS, maxTask
}

// raiseCountersLocked merges partial into dir's stored counters. With strict
// set, a lower value is an error; otherwise lower values are ignored. The
// file is only rewritten when a counter changes. Callers hold metaMu.
func (s *Store) raiseCountersLocked(ctx context.Context, dir string, partial models.RequirementCounters, strict bool) (models.RequirementCounters, error) {
	current, err := s.readMetadata(ctx, dir)
	if err != nil {
		return nil, err
	}

	changed := false
	for t, v := range partial {
		stored := current.RequirementCounters[t]
		if v < stored && strict {
			return nil, fmt.Errorf("%w: %s %d < %d", ErrCounterRegression, t, v, stored)
		}
		if v > stored {
			changed = true
		}
	}
	if !changed {
		return current.RequirementCounters, nil
	}

	p, err := s.rewriteMetadata(ctx, dir, func(obj map[string]json.RawMessage) error {
		counters, err := decodeCounters(obj)
		if err != nil {
			return err
		}
		for t, v := range partial {
			if v > counters[t] {
				counters[t] = v
			}
		}
		return encodeCounters(obj, counters)
	})
	if err != nil {
		return nil, err
	}
	return p.RequirementCounters, nil
}

func decodeCounters(obj map[string]json.RawMessage) (models.RequirementCounters, error) {
	counters := models.NewRequirementCounters()
	if raw, ok := obj["requirementCounters"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &counters); err != nil {
			return nil, fmt.Errorf("failed to parse requirement counters: %w", err)
		}
	}
	return counters, nil
}

func encodeCounters(obj map[string]json.RawMessage, counters models.RequirementCounters) error {
	encoded, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("failed to encode requirement counters: %w", err)
	}
	obj["requirementCounters"] = encoded
	return nil
}
