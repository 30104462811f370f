package models

// FeatureFile represents the content of one *-feature.json
type FeatureFile struct {
	Features         []UserStory `json:"features"`
	ArchivedFeatures []UserStory `json:"archivedFeatures"`
}

// UserStory represents a user story and its tasks
type UserStory struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Tasks         []Task      `json:"tasks"`
	ArchivedTasks []Task      `json:"archivedTasks"`
	ChatHistory   []ChatEntry `json:"chatHistory,omitempty"`
	StoryTicketID string      `json:"storyTicketId,omitempty"`
}

// Task represents a task under a user story
type Task struct {
	ID              string      `json:"id"`
	List            string      `json:"list"`
	Acceptance      string      `json:"acceptance"`
	ChatHistory     []ChatEntry `json:"chatHistory,omitempty"`
	SubTaskTicketID string      `json:"subTaskTicketId,omitempty"`
}

// Normalize replaces nil slices with empty ones so files always carry both arrays
func (f *FeatureFile) Normalize() {
	if f.Features == nil {
		f.Features = []UserStory{}
	}
	if f.ArchivedFeatures == nil {
		f.ArchivedFeatures = []UserStory{}
	}
	for i := range f.Features {
		f.Features[i].normalize()
	}
	for i := range f.ArchivedFeatures {
		f.ArchivedFeatures[i].normalize()
	}
}

func (s *UserStory) normalize() {
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	if s.ArchivedTasks == nil {
		s.ArchivedTasks = []Task{}
	}
}
