package models

// Jira issue type names used when syncing requirements
const (
	JiraIssueTypeEpic    = "Epic"
	JiraIssueTypeStory   = "Story"
	JiraIssueTypeSubTask = "Sub-task"
)

// JiraIssue is the create-issue request body
type JiraIssue struct {
	Fields JiraFields `json:"fields"`
}

// JiraFields holds the fields of a new issue
type JiraFields struct {
	Project     JiraKeyRef    `json:"project"`
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	IssueType   JiraIssueType `json:"issuetype"`
	Parent      *JiraKeyRef   `json:"parent,omitempty"`
	Labels      []string      `json:"labels,omitempty"`
}

// JiraKeyRef references a project or issue by key
type JiraKeyRef struct {
	Key string `json:"key"`
}

// JiraIssueType names an issue type
type JiraIssueType struct {
	Name string `json:"name"`
}

// JiraResponse is returned by the create-issue endpoint
type JiraResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self,omitempty"`
}

// JiraProjectInfo describes an accessible Jira project
type JiraProjectInfo struct {
	Key         string              `json:"key"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	IssueTypes  []JiraIssueTypeInfo `json:"issueTypes,omitempty"`
}

// JiraIssueTypeInfo describes an issue type available in a project
type JiraIssueTypeInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// SyncReport summarizes one Jira sync run
type SyncReport struct {
	EpicKey        string   `json:"epicKey"`
	CreatedStories []string `json:"createdStories"`
	CreatedTasks   []string `json:"createdTasks"`
	Skipped        int      `json:"skipped"`
	Failed         []string `json:"failed,omitempty"`
}
