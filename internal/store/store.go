// Package store holds the project/document state container. State changes
// only through the intents exposed as Store methods; readers get copies.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
)

var (
	// ErrNoProjectSelected is returned by intents that need a loaded project
	ErrNoProjectSelected = errors.New("no project selected")

	// ErrProjectNotFound is returned when a project id is unknown
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectExists is returned when creating a project whose folder exists
	ErrProjectExists = errors.New("project already exists")

	// ErrCounterRegression is returned when a counter update would lower a counter
	ErrCounterRegression = errors.New("requirement counter cannot decrease")

	// ErrReadOnlyField is returned when a metadata update names a field only
	// the store may write
	ErrReadOnlyField = errors.New("metadata field is read-only")
)

// Store is the document store
type Store struct {
	fs      gateway.FileSystem
	logger  *log.Logger
	timeout time.Duration

	mu          sync.RWMutex
	state       State
	subscribers map[int]func(State)
	nextSub     int

	// metaMu serializes read-modify-write cycles on .metadata.json files
	metaMu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the diagnostics logger
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = helpers.OrDiscard(logger) }
}

// WithTimeout bounds every intent; zero disables the bound
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New creates a store over fs
func New(fs gateway.FileSystem, opts ...Option) *Store {
	s := &Store{
		fs:          fs,
		logger:      helpers.DiscardLogger(),
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every state change
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) dispatch(a action) {
	s.mu.Lock()
	s.state = reduce(s.state, a)
	snapshot := cloneState(s.state)
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) selectedProject() (models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.SelectedProject == nil {
		return models.Project{}, ErrNoProjectSelected
	}
	return cloneProject(*s.state.SelectedProject), nil
}
