package stories

import "req-studio/internal/models"

// State mirrors the most recently loaded feature file
type State struct {
	FilePath            string
	UserStories         []models.UserStory
	ArchivedFeatures    []models.UserStory
	TaskMap             map[string][]models.Task
	SelectedUserStoryID string
	SelectedTaskID      string
}

type action interface{ isAction() }

type featureFileLoaded struct {
	path string
	file models.FeatureFile
}

type userStorySelected struct{ id string }

type taskSelected struct{ id string }

func (featureFileLoaded) isAction() {}
func (userStorySelected) isAction() {}
func (taskSelected) isAction()      {}

func reduce(s State, a action) State {
	switch a := a.(type) {
	case featureFileLoaded:
		if s.FilePath != a.path {
			s.SelectedUserStoryID = ""
			s.SelectedTaskID = ""
		}
		s.FilePath = a.path
		s.UserStories = a.file.Features
		s.ArchivedFeatures = a.file.ArchivedFeatures
		s.TaskMap = make(map[string][]models.Task, len(a.file.Features))
		for _, story := range a.file.Features {
			s.TaskMap[story.ID] = story.Tasks
		}

	case userStorySelected:
		if s.SelectedUserStoryID != a.id {
			s.SelectedTaskID = ""
		}
		s.SelectedUserStoryID = a.id

	case taskSelected:
		s.SelectedTaskID = a.id
	}
	return s
}

func cloneState(st State) State {
	out := st
	out.UserStories = cloneStories(st.UserStories)
	out.ArchivedFeatures = cloneStories(st.ArchivedFeatures)
	if st.TaskMap != nil {
		out.TaskMap = make(map[string][]models.Task, len(st.TaskMap))
		for id, tasks := range st.TaskMap {
			out.TaskMap[id] = append([]models.Task(nil), tasks...)
		}
	}
	return out
}

func cloneStories(stories []models.UserStory) []models.UserStory {
	if stories == nil {
		return nil
	}
	out := make([]models.UserStory, len(stories))
	for i, s := range stories {
		s.Tasks = append([]models.Task{}, s.Tasks...)
		s.ArchivedTasks = append([]models.Task{}, s.ArchivedTasks...)
		out[i] = s
	}
	return out
}
