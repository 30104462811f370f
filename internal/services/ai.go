package services

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
	"req-studio/internal/helpers"
	"req-studio/internal/models"
)

// AIService drafts requirements and user stories with the Anthropic API
type AIService struct {
	config *config.AnthropicConfig
	client *http.Client
}

// NewAIService creates a new AI service
func NewAIService(anthropicConfig *config.AnthropicConfig) *AIService {
	return &AIService{
		config: anthropicConfig,
		client: &http.Client{
			Timeout: time.Duration(anthropicConfig.TimeoutSeconds) * time.Second,
		},
	}
}

var requirementNames = map[models.RequirementType]string{
	models.TypeBRD: "Business Requirement Document",
	models.TypePRD: "Product Requirement Document",
	models.TypeNFR: "Non-Functional Requirement",
	models.TypeUIR: "UI Requirement",
	models.TypeBP:  "Business Process",
}

type draftedRequirement struct {
	Title       string `json:"title"`
	Requirement string `json:"requirement"`
}

type draftedStories struct {
	Features []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Tasks       []struct {
			List       string `json:"list"`
			Acceptance string `json:"acceptance"`
		} `json:"tasks"`
	} `json:"features"`
}

// ExpandRequirement turns a short brief into a titled requirement. The
// exchange is recorded as the document's first chat entry.
func (s *AIService) ExpandRequirement(ctx context.Context, t models.RequirementType, brief string, project models.Project) (models.Document, error) {
	name, ok := requirementNames[t]
	if !ok {
		return models.Document{}, fmt.Errorf("cannot draft requirements of type %s", t)
	}

	prompt := fmt.Sprintf(`You are a senior business analyst writing a %s for the project below.

Project: %s
Description: %s
Technical details: %s

Brief from the user:
%s

Please respond with a JSON object that follows this exact structure:
{
  "title": "short requirement title",
  "requirement": "the full requirement text"
}

Guidelines:
- Keep the title under 10 words
- Write the requirement as clear, testable statements
- Stay within the scope of the brief

Respond ONLY with valid JSON. Do not include any markdown formatting or explanations.`,
		name, project.Name, project.Description, project.TechnicalDetails, brief)

	var drafted draftedRequirement
	if err := s.completeWithRetry(ctx, prompt, &drafted); err != nil {
		return models.Document{}, err
	}
	if strings.TrimSpace(drafted.Requirement) == "" {
		return models.Document{}, fmt.Errorf("model returned an empty requirement")
	}

	return models.Document{
		Title:       drafted.Title,
		Requirement: drafted.Requirement,
		ChatHistory: []models.ChatEntry{{User: brief, Assistant: drafted.Requirement}},
	}, nil
}

// GenerateUserStories drafts user stories with tasks for a PRD. Stories
// with the same name are merged. Returned stories carry no ids.
func (s *AIService) GenerateUserStories(ctx context.Context, prd models.Document, project models.Project) ([]models.UserStory, error) {
	prompt := fmt.Sprintf(`You are a senior product owner. Break the product requirement below into user stories with implementation tasks.

Project: %s
Technical details: %s

Requirement title: %s
Requirement:
%s

Please respond with a JSON object that follows this exact structure:
{
  "features": [
    {
      "name": "User story title",
      "description": "As a [user type], I want [goal] so that [benefit]",
      "tasks": [
        {
          "list": "what to build",
          "acceptance": "acceptance criteria"
        }
      ]
    }
  ]
}

Guidelines:
- Create 3-8 user stories
- Each story should have 2-5 tasks
- Use proper user story format: "As a [persona], I want [goal] so that [benefit]"

Respond ONLY with valid JSON. Do not include any markdown formatting or explanations.`,
		project.Name, project.TechnicalDetails, prd.Title, prd.Requirement)

	var drafted draftedStories
	if err := s.completeWithRetry(ctx, prompt, &drafted); err != nil {
		return nil, err
	}

	stories := make([]models.UserStory, 0, len(drafted.Features))
	for _, f := range drafted.Features {
		story := models.UserStory{Name: f.Name, Description: f.Description, Tasks: []models.Task{}}
		for _, task := range f.Tasks {
			story.Tasks = append(story.Tasks, models.Task{List: task.List, Acceptance: task.Acceptance})
		}
		stories = append(stories, story)
	}
	return deduplicateStories(stories), nil
}

// completeWithRetry calls the API until the reply parses into out
func (s *AIService) completeWithRetry(ctx context.Context, prompt string, out interface{}) error {
	attempts := s.config.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := s.complete(ctx, prompt, out)
		if err == nil {
			return nil
		}

		lastErr = err
		helpers.PrintWarning("Attempt %d failed: %v", attempt, err)

		if attempt < attempts {
			helpers.PrintInfo("Retrying in %d seconds...", s.config.RetryDelaySeconds)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(s.config.RetryDelaySeconds) * time.Second):
			}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (s *AIService) complete(ctx context.Context, prompt string, out interface{}) error {
	reqBody := map[string]interface{}{
		"model":      s.config.Model,
		"max_tokens": s.config.MaxTokens,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(s.config.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var apiResponse struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return fmt.Errorf("failed to decode API response: %w", err)
	}
	if len(apiResponse.Content) == 0 {
		return fmt.Errorf("empty response from API")
	}

	responseText := strings.TrimSpace(apiResponse.Content[0].Text)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	if err := json.Unmarshal([]byte(responseText), out); err != nil {
		return fmt.Errorf("failed to parse AI response as JSON: %w\nResponse: %s", err, responseText)
	}
	return nil
}

// deduplicateStories merges stories that share a name, keeping the first
// occurrence's position and the longer description
func deduplicateStories(stories []models.UserStory) []models.UserStory {
	index := make(map[string]int)
	var result []models.UserStory

	for _, story := range stories {
		key := strings.ToLower(strings.TrimSpace(story.Name))
		i, exists := index[key]
		if !exists {
			index[key] = len(result)
			result = append(result, story)
			continue
		}

		existing := &result[i]
		if len(story.Description) > len(existing.Description) {
			existing.Description = story.Description
		}
		existing.Tasks = append(existing.Tasks, story.Tasks...)
	}

	return result
}
