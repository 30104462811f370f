package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"req-studio/internal/config"
	"req-studio/internal/models"
)

// JiraRepository handles JIRA REST API calls
type JiraRepository struct {
	config *config.JiraConfig
	client *http.Client
}

// NewJiraRepository creates a new JIRA repository
func NewJiraRepository(jiraConfig *config.JiraConfig) *JiraRepository {
	return &JiraRepository{
		config: jiraConfig,
		client: &http.Client{
			Timeout: time.Duration(jiraConfig.Timeout) * time.Second,
		},
	}
}

func (r *JiraRepository) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	url := strings.TrimRight(r.config.BaseURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(r.config.Username, r.config.APIToken)
	return req, nil
}

// do sends req and decodes the body into out when the status matches
func (r *JiraRepository) do(req *http.Request, want int, out interface{}) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("JIRA API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// TestConnection checks the credentials and returns accessible projects
func (r *JiraRepository) TestConnection(ctx context.Context) ([]models.JiraProjectInfo, error) {
	req, err := r.newRequest(ctx, http.MethodGet, "/rest/api/2/project", nil)
	if err != nil {
		return nil, err
	}

	var projects []models.JiraProjectInfo
	if err := r.do(req, http.StatusOK, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProjectInfo gets one project together with its issue types
func (r *JiraRepository) GetProjectInfo(ctx context.Context, projectKey string) (*models.JiraProjectInfo, error) {
	req, err := r.newRequest(ctx, http.MethodGet, "/rest/api/2/project/"+projectKey, nil)
	if err != nil {
		return nil, err
	}

	var project models.JiraProjectInfo
	if err := r.do(req, http.StatusOK, &project); err != nil {
		return nil, fmt.Errorf("project lookup failed: %w", err)
	}
	return &project, nil
}

// GetIssueTypes gets available issue types for a project
func (r *JiraRepository) GetIssueTypes(ctx context.Context, projectKey string) ([]models.JiraIssueTypeInfo, error) {
	project, err := r.GetProjectInfo(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	return project.IssueTypes, nil
}

// CreateIssue creates a new JIRA issue
func (r *JiraRepository) CreateIssue(ctx context.Context, issue *models.JiraIssue) (*models.JiraResponse, error) {
	jsonData, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issue: %w", err)
	}

	req, err := r.newRequest(ctx, http.MethodPost, "/rest/api/2/issue", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	var jiraResp models.JiraResponse
	if err := r.do(req, http.StatusCreated, &jiraResp); err != nil {
		return nil, err
	}
	return &jiraResp, nil
}
