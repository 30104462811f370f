package store

import "req-studio/internal/models"

// State is the in-memory view of the working directory. Every field is a
// disposable cache; the JSON files on disk stay authoritative.
type State struct {
	Loading              bool
	Projects             []models.Project
	SelectedProject      *models.Project
	CurrentProjectFiles  []models.Folder
	SelectedFileContent  *models.Document
	SelectedFileContents []models.FileEntry
}

type action interface{ isAction() }

type setLoading struct{ loading bool }

type projectsLoaded struct{ projects []models.Project }

type projectAdded struct{ project models.Project }

type projectUpdated struct{ project models.Project }

type projectFilesLoaded struct {
	project models.Project
	folders []models.Folder
}

type fileContentLoaded struct{ document models.Document }

type fileContentsLoaded struct{ entries []models.FileEntry }

func (setLoading) isAction()         {}
func (projectsLoaded) isAction()     {}
func (projectAdded) isAction()       {}
func (projectUpdated) isAction()     {}
func (projectFilesLoaded) isAction() {}
func (fileContentLoaded) isAction()  {}
func (fileContentsLoaded) isAction() {}

// reduce returns the state that results from applying a to s. It never
// mutates s's slices in place.
func reduce(s State, a action) State {
	switch a := a.(type) {
	case setLoading:
		s.Loading = a.loading

	case projectsLoaded:
		s.Projects = a.projects
		if s.SelectedProject != nil {
			s.SelectedProject = findProject(a.projects, s.SelectedProject.ID)
		}

	case projectAdded:
		projects := make([]models.Project, 0, len(s.Projects)+1)
		projects = append(projects, a.project)
		s.Projects = append(projects, s.Projects...)

	case projectUpdated:
		projects := make([]models.Project, len(s.Projects))
		copy(projects, s.Projects)
		found := false
		for i := range projects {
			if projects[i].ID == a.project.ID {
				projects[i] = a.project
				found = true
			}
		}
		if !found {
			projects = append(projects, a.project)
		}
		s.Projects = projects
		if s.SelectedProject != nil && s.SelectedProject.ID == a.project.ID {
			p := a.project
			s.SelectedProject = &p
		}

	case projectFilesLoaded:
		p := a.project
		s.SelectedProject = &p
		s.CurrentProjectFiles = a.folders

	case fileContentLoaded:
		d := a.document
		s.SelectedFileContent = &d

	case fileContentsLoaded:
		s.SelectedFileContents = a.entries
	}
	return s
}

func findProject(projects []models.Project, id string) *models.Project {
	for i := range projects {
		if projects[i].ID == id {
			p := projects[i]
			return &p
		}
	}
	return nil
}
