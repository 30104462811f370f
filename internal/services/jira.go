package services

import (
	"context"
	"fmt"
	"time"

	"req-studio/internal/config"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
	"req-studio/internal/repositories"
	"req-studio/internal/stories"
	"req-studio/internal/store"
)

const jiraLabel = "req-studio"

// JiraService pushes PRDs, their user stories and tasks to JIRA
type JiraService struct {
	repo       *repositories.JiraRepository
	config     *config.JiraConfig
	docs       *store.Store
	stories    *stories.Store
	retryDelay time.Duration
}

// NewJiraService creates a new JIRA service
func NewJiraService(jiraConfig *config.JiraConfig, docs *store.Store, storyStore *stories.Store) *JiraService {
	return &JiraService{
		repo:       repositories.NewJiraRepository(jiraConfig),
		config:     jiraConfig,
		docs:       docs,
		stories:    storyStore,
		retryDelay: 2 * time.Second,
	}
}

// TestConnection tests the JIRA connection and validates project access
func (s *JiraService) TestConnection(ctx context.Context) error {
	helpers.PrintInfo("Testing JIRA authentication and listing accessible projects...")

	projects, err := s.repo.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	helpers.PrintSuccess("Authentication successful! Found %d accessible projects:", len(projects))

	projectFound := false
	for _, project := range projects {
		marker := " "
		if project.Key == s.config.ProjectKey {
			marker = "*"
			projectFound = true
		}
		helpers.PrintInfo("  %s %s (%s)", marker, project.Key, project.Name)
	}

	if !projectFound {
		helpers.PrintWarning("Project key '%s' not found in accessible projects!", s.config.ProjectKey)
		return fmt.Errorf("project key '%s' not found in accessible projects", s.config.ProjectKey)
	}

	issueTypes, err := s.repo.GetIssueTypes(ctx, s.config.ProjectKey)
	if err != nil {
		return fmt.Errorf("failed to access project: %w", err)
	}

	available := make(map[string]bool, len(issueTypes))
	for _, it := range issueTypes {
		available[it.Name] = true
	}
	for _, name := range []string{models.JiraIssueTypeEpic, models.JiraIssueTypeStory, models.JiraIssueTypeSubTask} {
		if !available[name] {
			return fmt.Errorf("project '%s' has no '%s' issue type", s.config.ProjectKey, name)
		}
	}

	helpers.PrintSuccess("JIRA connection successful")
	return nil
}

// LinkProject records the configured JIRA project in the project's
// metadata so later syncs and exports know where its tickets live
func (s *JiraService) LinkProject(ctx context.Context, projectID string) (*models.JiraProjectInfo, error) {
	info, err := s.repo.GetProjectInfo(ctx, s.config.ProjectKey)
	if err != nil {
		return nil, err
	}

	integration := models.Integration{
		Jira: &models.JiraIntegration{BaseURL: s.config.BaseURL, ProjectKey: info.Key},
	}
	if p, ok := s.docs.SelectedProject(); ok && p.ID == projectID {
		integration.Bedrock = p.Integration.Bedrock
	}

	if err := s.docs.UpdateMetadata(ctx, projectID, map[string]interface{}{"integration": integration}); err != nil {
		return nil, fmt.Errorf("failed to record JIRA project: %w", err)
	}
	return info, nil
}

// createIssueWithRetry creates a JIRA issue with retry logic
func (s *JiraService) createIssueWithRetry(ctx context.Context, summary, description, issueType, parent string) (string, error) {
	issue := &models.JiraIssue{
		Fields: models.JiraFields{
			Project:     models.JiraKeyRef{Key: s.config.ProjectKey},
			Summary:     summary,
			Description: description,
			IssueType:   models.JiraIssueType{Name: issueType},
			Labels:      []string{jiraLabel},
		},
	}
	if parent != "" && issueType != models.JiraIssueTypeEpic {
		issue.Fields.Parent = &models.JiraKeyRef{Key: parent}
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := s.repo.CreateIssue(ctx, issue)
		if err == nil {
			return resp.Key, nil
		}

		lastErr = err
		helpers.PrintWarning("Attempt %d failed: %v", attempt, err)

		if attempt < 3 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}
	}

	return "", fmt.Errorf("failed after 3 attempts: %w", lastErr)
}

// SyncPRD creates the PRD's epic, its stories and their sub-tasks, and
// records each ticket key next to the entry it was created from. Entries
// that already carry a key are skipped, so a sync can be re-run.
func (s *JiraService) SyncPRD(ctx context.Context, prdPath, featurePath string) (*models.SyncReport, error) {
	doc, err := s.docs.ReadFile(ctx, prdPath)
	if err != nil {
		return nil, err
	}

	report := &models.SyncReport{CreatedStories: []string{}, CreatedTasks: []string{}}

	if doc.EpicTicketID == "" {
		key, err := s.createIssueWithRetry(ctx, doc.Title, doc.Requirement, models.JiraIssueTypeEpic, "")
		if err != nil {
			return nil, fmt.Errorf("failed to create epic '%s': %w", doc.Title, err)
		}
		doc.EpicTicketID = key
		if err := s.docs.UpdateFile(ctx, prdPath, doc); err != nil {
			return nil, fmt.Errorf("created epic %s but failed to record it: %w", key, err)
		}
		helpers.PrintSuccess("Created epic: %s", key)
	} else {
		report.Skipped++
	}
	report.EpicKey = doc.EpicTicketID

	list := s.stories.GetUserStories(ctx, featurePath)
	for i, story := range list {
		helpers.PrintProgress(i+1, len(list), fmt.Sprintf("Syncing story: %s", story.Name))

		storyKey := story.StoryTicketID
		if storyKey == "" {
			storyKey, err = s.createIssueWithRetry(ctx, story.Name, story.Description, models.JiraIssueTypeStory, report.EpicKey)
			if err != nil {
				helpers.PrintWarning("Failed to create story '%s': %v", story.Name, err)
				report.Failed = append(report.Failed, story.ID)
				continue
			}
			if _, err := s.stories.EditUserStory(ctx, featurePath, story.ID, stories.UserStoryPatch{StoryTicketID: &storyKey}); err != nil {
				return report, fmt.Errorf("created story %s but failed to record it: %w", storyKey, err)
			}
			report.CreatedStories = append(report.CreatedStories, storyKey)
		} else {
			report.Skipped++
		}

		for _, task := range story.Tasks {
			if task.SubTaskTicketID != "" {
				report.Skipped++
				continue
			}

			description := "*Acceptance Criteria:*\n" + task.Acceptance
			taskKey, err := s.createIssueWithRetry(ctx, task.List, description, models.JiraIssueTypeSubTask, storyKey)
			if err != nil {
				helpers.PrintWarning("Failed to create sub-task '%s': %v", task.ID, err)
				report.Failed = append(report.Failed, story.ID+"/"+task.ID)
				continue
			}
			task.SubTaskTicketID = taskKey
			if err := s.stories.UpdateTaskFor(ctx, story.ID, task, featurePath); err != nil {
				return report, fmt.Errorf("created sub-task %s but failed to record it: %w", taskKey, err)
			}
			report.CreatedTasks = append(report.CreatedTasks, taskKey)
		}
	}

	return report, nil
}
