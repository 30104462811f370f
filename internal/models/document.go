package models

// ChatEntry represents one exchange in a document's chat history
type ChatEntry struct {
	User      string `json:"user,omitempty"`
	Assistant string `json:"assistant,omitempty"`
	IsAdded   bool   `json:"isAdded,omitempty"`
	IsUpdated bool   `json:"isUpdated,omitempty"`
}

// Document represents the content of one base file
type Document struct {
	Title            string      `json:"title"`
	Requirement      string      `json:"requirement"`
	ChatHistory      []ChatEntry `json:"chatHistory,omitempty"`
	EpicTicketID     string      `json:"epicTicketId,omitempty"`
	SelectedBRDs     []string    `json:"selectedBRDs,omitempty"`
	SelectedPRDs     []string    `json:"selectedPRDs,omitempty"`
	FlowChartDiagram string      `json:"flowChartDiagram,omitempty"`
}

// Folder represents one directory and its (filtered) file names
type Folder struct {
	Name     string   `json:"name"`
	Children []string `json:"children"`
}

// FileEntry is one result of a bulk read
type FileEntry struct {
	FolderName string   `json:"folderName"`
	FileName   string   `json:"fileName"`
	Content    Document `json:"content"`
}
