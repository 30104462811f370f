package stories

import (
	"context"
	"fmt"

	"req-studio/internal/models"
)

// UserStoryPatch lists the fields EditUserStory replaces. Nil fields are
// left alone; a non-nil slice replaces the whole array.
type UserStoryPatch struct {
	Name          *string
	Description   *string
	Tasks         []models.Task
	ChatHistory   []models.ChatEntry
	StoryTicketID *string
}

func (p UserStoryPatch) apply(story *models.UserStory) {
	if p.Name != nil {
		story.Name = *p.Name
	}
	if p.Description != nil {
		story.Description = *p.Description
	}
	if p.Tasks != nil {
		story.Tasks = append([]models.Task{}, p.Tasks...)
	}
	if p.ChatHistory != nil {
		story.ChatHistory = p.ChatHistory
	}
	if p.StoryTicketID != nil {
		story.StoryTicketID = *p.StoryTicketID
	}
}

// EditUserStory merges patch into the story with id and rewrites the file
func (s *Store) EditUserStory(ctx context.Context, path, id string, patch UserStoryPatch) (models.UserStory, error) {
	var updated models.UserStory
	err := s.mutate(ctx, path, func(ff *models.FeatureFile) error {
		i, err := findStory(ff, id)
		if err != nil {
			return err
		}
		patch.apply(&ff.Features[i])
		if patch.Tasks != nil {
			if err := s.assignTaskIDs(ctx, ff, i); err != nil {
				return err
			}
		}
		updated = ff.Features[i]
		return nil
	})
	if err != nil {
		return models.UserStory{}, err
	}

	s.emit(Event{Kind: EventUserStoryUpdated, Path: path, UserStoryID: id})
	return updated, nil
}

// assignTaskIDs gives blank task ids of story i fresh ids and rejects ids
// used twice in the story, archived tasks included
func (s *Store) assignTaskIDs(ctx context.Context, ff *models.FeatureFile, i int) error {
	story := &ff.Features[i]
	seen := make(map[string]bool, len(story.Tasks)+len(story.ArchivedTasks))
	for _, task := range story.ArchivedTasks {
		seen[task.ID] = true
	}
	for _, task := range story.Tasks {
		if task.ID == "" {
			continue
		}
		if seen[task.ID] {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateTaskID, task.ID, story.ID)
		}
		seen[task.ID] = true
	}

	for j := range story.Tasks {
		if story.Tasks[j].ID != "" {
			continue
		}
		id, err := s.allocate(ctx, models.TypeTask, ff)
		if err != nil {
			return err
		}
		story.Tasks[j].ID = id
	}
	return nil
}

// CreateNewUserStory appends story with a fresh id and no tasks
func (s *Store) CreateNewUserStory(ctx context.Context, story models.UserStory, path string) (models.UserStory, error) {
	err := s.mutate(ctx, path, func(ff *models.FeatureFile) error {
		id, err := s.allocate(ctx, models.TypeUS, ff)
		if err != nil {
			return err
		}
		story.ID = id
		story.Tasks = []models.Task{}
		story.ArchivedTasks = []models.Task{}
		ff.Features = append(ff.Features, story)
		return nil
	})
	if err != nil {
		return models.UserStory{}, err
	}

	s.emit(Event{Kind: EventUserStoryCreated, Path: path, UserStoryID: story.ID})
	return story, nil
}

// ImportUserStories appends generated stories and their tasks, assigning
// fresh ids to every story and task
func (s *Store) ImportUserStories(ctx context.Context, path string, incoming []models.UserStory) ([]models.UserStory, error) {
	var created []models.UserStory
	err := s.mutate(ctx, path, func(ff *models.FeatureFile) error {
		created = created[:0]
		for _, story := range incoming {
			id, err := s.allocate(ctx, models.TypeUS, ff)
			if err != nil {
				return err
			}
			story.ID = id
			tasks := make([]models.Task, 0, len(story.Tasks))
			for _, task := range story.Tasks {
				// the story is not yet in ff, so the file-scoped fallback
				// must also see ids issued earlier in this loop
				scratch := *ff
				scratch.Features = append(append([]models.UserStory{}, ff.Features...), models.UserStory{Tasks: tasks})
				taskID, err := s.allocate(ctx, models.TypeTask, &scratch)
				if err != nil {
					return err
				}
				task.ID = taskID
				tasks = append(tasks, task)
			}
			story.Tasks = tasks
			story.ArchivedTasks = []models.Task{}
			ff.Features = append(ff.Features, story)
			created = append(created, story)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, story := range created {
		s.emit(Event{Kind: EventUserStoryCreated, Path: path, UserStoryID: story.ID})
	}
	return created, nil
}

// ArchiveUserStory moves the story into archivedFeatures
func (s *Store) ArchiveUserStory(ctx context.Context, path, id string) error {
	err := s.mutate(ctx, path, func(ff *models.FeatureFile) error {
		i, err := findStory(ff, id)
		if err != nil {
			return err
		}
		story := ff.Features[i]
		ff.Features = append(ff.Features[:i:i], ff.Features[i+1:]...)
		ff.ArchivedFeatures = append(ff.ArchivedFeatures, story)
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(Event{Kind: EventUserStoryArchived, Path: path, UserStoryID: id})
	return nil
}

// CreateNewTask appends task to the selected story
func (s *Store) CreateNewTask(ctx context.Context, task models.Task, path string) (models.Task, error) {
	storyID := s.SelectedUserStoryID()
	if storyID == "" {
		return models.Task{}, ErrNoUserStorySelected
	}
	return s.CreateTaskFor(ctx, storyID, task, path)
}

// CreateTaskFor appends task with a fresh id to the story with storyID
func (s *Store) CreateTaskFor(ctx context.Context, storyID string, task models.Task, path string) (models.Task, error) {
	err := s.mutate(ctx, path, func(ff *models.FeatureFile) error {
		i, err := findStory(ff, storyID)
		if err != nil {
			return err
		}
		id, err := s.allocate(ctx, models.TypeTask, ff)
		if err != nil {
			return err
		}
		task.ID = id
		ff.Features[i].Tasks = append(ff.Features[i].Tasks, task)
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	s.emit(Event{Kind: EventTaskCreated, Path: path, UserStoryID: storyID, TaskID: task.ID})
	return task, nil
}

// UpdateTask replaces the task with the same id in the selected story.
// Navigation after the write belongs to Subscribe listeners.
func (s *Store) UpdateTask(ctx context.Context, task models.Task, path string) error {
	storyID := s.SelectedUserStoryID()
	if storyID == "" {
		return ErrNoUserStorySelected
	}
	return s.UpdateTaskFor(ctx, storyID, task, path)
}

// UpdateTaskFor replaces the task with the same id in the story with storyID
func (s *Store) UpdateTaskFor(ctx context.Context, storyID string, task models.Task, path string) error {
	err := s.mutate(ctx, path, func(ff *models.FeatureFile) error {
		i, err := findStory(ff, storyID)
		if err != nil {
			return err
		}
		j, err := findTask(&ff.Features[i], task.ID)
		if err != nil {
			return err
		}
		ff.Features[i].Tasks[j] = task
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(Event{Kind: EventTaskUpdated, Path: path, UserStoryID: storyID, TaskID: task.ID})
	return nil
}

// ArchiveTask moves a task into its story's archivedTasks
func (s *Store) ArchiveTask(ctx context.Context, path, storyID, taskID string) error {
	err := s.mutate(ctx, path, func(ff *models.FeatureFile) error {
		i, err := findStory(ff, storyID)
		if err != nil {
			return err
		}
		story := &ff.Features[i]
		j, err := findTask(story, taskID)
		if err != nil {
			return err
		}
		task := story.Tasks[j]
		story.Tasks = append(story.Tasks[:j:j], story.Tasks[j+1:]...)
		story.ArchivedTasks = append(story.ArchivedTasks, task)
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(Event{Kind: EventTaskArchived, Path: path, UserStoryID: storyID, TaskID: taskID})
	return nil
}
