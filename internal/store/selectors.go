package store

import "req-studio/internal/models"

// State returns a snapshot of the whole state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// Loading reports whether a project load is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

// Projects returns the cached project list
func (s *Store) Projects() []models.Project {
	return s.State().Projects
}

// SelectedProject returns the active project, if any
func (s *Store) SelectedProject() (models.Project, bool) {
	p, err := s.selectedProject()
	return p, err == nil
}

// CurrentProjectFiles returns the active project's folder tree
func (s *Store) CurrentProjectFiles() []models.Folder {
	return s.State().CurrentProjectFiles
}

// SelectedFileContent returns the last document read or written
func (s *Store) SelectedFileContent() (models.Document, bool) {
	st := s.State()
	if st.SelectedFileContent == nil {
		return models.Document{}, false
	}
	return *st.SelectedFileContent, true
}

// SelectedFileContents returns the last bulk-read result
func (s *Store) SelectedFileContents() []models.FileEntry {
	return s.State().SelectedFileContents
}

func cloneState(st State) State {
	out := st

	if st.Projects != nil {
		out.Projects = make([]models.Project, len(st.Projects))
		for i, p := range st.Projects {
			out.Projects[i] = cloneProject(p)
		}
	}
	if st.SelectedProject != nil {
		p := cloneProject(*st.SelectedProject)
		out.SelectedProject = &p
	}
	if st.CurrentProjectFiles != nil {
		out.CurrentProjectFiles = make([]models.Folder, len(st.CurrentProjectFiles))
		for i, f := range st.CurrentProjectFiles {
			out.CurrentProjectFiles[i] = models.Folder{
				Name:     f.Name,
				Children: append([]string(nil), f.Children...),
			}
		}
	}
	if st.SelectedFileContent != nil {
		d := *st.SelectedFileContent
		out.SelectedFileContent = &d
	}
	if st.SelectedFileContents != nil {
		out.SelectedFileContents = append([]models.FileEntry(nil), st.SelectedFileContents...)
	}
	return out
}

func cloneProject(p models.Project) models.Project {
	p.RequirementCounters = p.RequirementCounters.Clone()
	if p.Integration.Jira != nil {
		j := *p.Integration.Jira
		p.Integration.Jira = &j
	}
	if p.Integration.Bedrock != nil {
		b := *p.Integration.Bedrock
		p.Integration.Bedrock = &b
	}
	return p
}
