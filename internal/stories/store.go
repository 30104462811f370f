// Package stories keeps the user stories and tasks of one feature file.
// Every change rewrites the whole file; archiving moves entries into the
// archived arrays in the same write instead of deleting them.
package stories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
)

var (
	// ErrUserStoryNotFound is returned when no active story has the id
	ErrUserStoryNotFound = errors.New("user story not found")

	// ErrTaskNotFound is returned when the story has no active task with the id
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoUserStorySelected is returned by task intents without a selected story
	ErrNoUserStorySelected = errors.New("no user story selected")

	// ErrDuplicateTaskID is returned when a story would hold two tasks with
	// the same id
	ErrDuplicateTaskID = errors.New("duplicate task id")
)

// IDAllocator issues project-wide ids for user stories and tasks
type IDAllocator interface {
	AllocateRequirementID(ctx context.Context, t models.RequirementType) (int, error)
}

// counterRaiser is implemented by allocators that can be told about ids
// issued past their counter
type counterRaiser interface {
	UpdateRequirementCounters(ctx context.Context, partial models.RequirementCounters) error
}

// EventKind names what a completed intent did
type EventKind string

// Events emitted after a write has been persisted
const (
	EventUserStoryCreated  EventKind = "user_story_created"
	EventUserStoryUpdated  EventKind = "user_story_updated"
	EventUserStoryArchived EventKind = "user_story_archived"
	EventTaskCreated       EventKind = "task_created"
	EventTaskUpdated       EventKind = "task_updated"
	EventTaskArchived      EventKind = "task_archived"
)

// Event describes a persisted change
type Event struct {
	Kind        EventKind
	Path        string
	UserStoryID string
	TaskID      string
}

// Store is the user story / task sub-store
type Store struct {
	fs     gateway.FileSystem
	ids    IDAllocator
	logger *log.Logger
	locks  *gateway.PathLocks

	mu        sync.RWMutex
	state     State
	listeners map[int]func(Event)
	nextID    int
}

// New creates a sub-store. With a nil allocator ids are derived from the
// highest id already present in the file, archived entries included.
func New(fs gateway.FileSystem, ids IDAllocator, logger *log.Logger) *Store {
	return &Store{
		fs:        fs,
		ids:       ids,
		logger:    helpers.OrDiscard(logger),
		locks:     gateway.NewPathLocks(),
		listeners: make(map[int]func(Event)),
	}
}

// Subscribe registers fn to run after every persisted change
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) dispatch(a action) {
	s.mu.Lock()
	s.state = reduce(s.state, a)
	s.mu.Unlock()
}

func (s *Store) emit(e Event) {
	s.mu.RLock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(e)
	}
}

// State returns a snapshot of the sub-store
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// UserStories returns the active stories of the loaded file
func (s *Store) UserStories() []models.UserStory {
	return s.State().UserStories
}

// ArchivedFeatures returns the archived stories of the loaded file
func (s *Store) ArchivedFeatures() []models.UserStory {
	return s.State().ArchivedFeatures
}

// TaskMap returns story id -> active tasks for the loaded file
func (s *Store) TaskMap() map[string][]models.Task {
	return s.State().TaskMap
}

// SelectUserStory makes id the story task intents act on
func (s *Store) SelectUserStory(id string) {
	s.dispatch(userStorySelected{id: id})
}

// SelectTask records the task being viewed
func (s *Store) SelectTask(id string) {
	s.dispatch(taskSelected{id: id})
}

// SelectedUserStoryID returns the selected story id
func (s *Store) SelectedUserStoryID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SelectedUserStoryID
}

// GetUserStories loads path and rebuilds the story list and task map. A
// missing or unreadable file yields no stories.
func (s *Store) GetUserStories(ctx context.Context, path string) []models.UserStory {
	ff, err := s.load(ctx, path)
	if err != nil {
		s.logger.Warn("failed to load user stories", "file", path, "err", err)
		ff = models.FeatureFile{}
		ff.Normalize()
	}
	s.dispatch(featureFileLoaded{path: path, file: ff})
	return s.UserStories()
}

func (s *Store) load(ctx context.Context, path string) (models.FeatureFile, error) {
	var ff models.FeatureFile

	raw, err := s.fs.ReadFile(ctx, path)
	if errors.Is(err, gateway.ErrNotFound) {
		ff.Normalize()
		return ff, nil
	}
	if err != nil {
		return ff, err
	}

	if err := json.Unmarshal([]byte(raw), &ff); err != nil {
		return ff, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	ff.Normalize()
	return ff, nil
}

// mutate runs one read-modify-write cycle on path under its lock
func (s *Store) mutate(ctx context.Context, path string, fn func(*models.FeatureFile) error) error {
	unlock := s.locks.Lock(path)
	defer unlock()

	ff, err := s.load(ctx, path)
	if err != nil {
		return err
	}

	if err := fn(&ff); err != nil {
		return err
	}
	ff.Normalize()

	data, err := helpers.MarshalPretty(ff)
	if err != nil {
		return err
	}
	if err := s.fs.CreateFileWithContent(ctx, path, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.dispatch(featureFileLoaded{path: path, file: ff})
	return nil
}

// allocate issues the next id of type t. An allocator whose counter is
// behind the ids already in ff is skipped ahead, so an id is never reused.
func (s *Store) allocate(ctx context.Context, t models.RequirementType, ff *models.FeatureFile) (string, error) {
	floor := maxID(ff, t) + 1
	if s.ids == nil {
		return fmt.Sprintf("%s%d", t, floor), nil
	}

	n, err := s.ids.AllocateRequirementID(ctx, t)
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s id: %w", t, err)
	}
	if n < floor {
		s.logger.Warn("counter behind feature file", "type", t, "allocated", n, "using", floor)
		n = floor
		if r, ok := s.ids.(counterRaiser); ok {
			if err := r.UpdateRequirementCounters(ctx, models.RequirementCounters{t: n}); err != nil {
				s.logger.Warn("failed to raise counter", "type", t, "err", err)
			}
		}
	}
	return fmt.Sprintf("%s%d", t, n), nil
}

func maxID(ff *models.FeatureFile, t models.RequirementType) int {
	highest := 0
	note := func(id string) {
		if n, ok := gateway.ParseNumber(id, string(t)); ok && n > highest {
			highest = n
		}
	}
	for _, group := range [][]models.UserStory{ff.Features, ff.ArchivedFeatures} {
		for _, story := range group {
			note(story.ID)
			for _, task := range story.Tasks {
				note(task.ID)
			}
			for _, task := range story.ArchivedTasks {
				note(task.ID)
			}
		}
	}
	return highest
}

func findStory(ff *models.FeatureFile, id string) (int, error) {
	for i := range ff.Features {
		if ff.Features[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrUserStoryNotFound, id)
}

func findTask(story *models.UserStory, id string) (int, error) {
	for i := range story.Tasks {
		if story.Tasks[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s/%s", ErrTaskNotFound, story.ID, id)
}
