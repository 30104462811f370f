package models

import "time"

// MetadataSchemaVersion is written into every new .metadata.json
const MetadataSchemaVersion = 1

// MetadataFileName is the per-project metadata file name
const MetadataFileName = ".metadata.json"

// RequirementType identifies a kind of requirement and its id prefix
type RequirementType string

// Requirement types
const (
	TypeBRD  RequirementType = "BRD"
	TypePRD  RequirementType = "PRD"
	TypeNFR  RequirementType = "NFR"
	TypeUIR  RequirementType = "UIR"
	TypeBP   RequirementType = "BP"
	TypeUS   RequirementType = "US"
	TypeTask RequirementType = "TASK"
)

// RequirementTypes lists every type that carries a counter
var RequirementTypes = []RequirementType{TypeBRD, TypePRD, TypeNFR, TypeUIR, TypeBP, TypeUS, TypeTask}

// FolderTypes lists the types stored as folders of base files
var FolderTypes = []RequirementType{TypeBRD, TypePRD, TypeNFR, TypeUIR, TypeBP}

// FolderOrder is the canonical display order of project folders
var FolderOrder = []string{"solution", "BRD", "PRD", "NFR", "UIR", "BP"}

// ParseRequirementType returns the type matching s, if any
func ParseRequirementType(s string) (RequirementType, bool) {
	for _, t := range RequirementTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// IsFolderType reports whether t is stored as a folder of base files
func (t RequirementType) IsFolderType() bool {
	for _, f := range FolderTypes {
		if f == t {
			return true
		}
	}
	return false
}

// RequirementCounters maps a requirement type to the highest id issued
type RequirementCounters map[RequirementType]int

// Clone returns an independent copy
func (c RequirementCounters) Clone() RequirementCounters {
	out := make(RequirementCounters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// NewRequirementCounters returns counters with every type at zero
func NewRequirementCounters() RequirementCounters {
	c := make(RequirementCounters, len(RequirementTypes))
	for _, t := range RequirementTypes {
		c[t] = 0
	}
	return c
}

// Project represents a project's .metadata.json
type Project struct {
	SchemaVersion       int                 `json:"schemaVersion,omitempty"`
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	Description         string              `json:"description"`
	CreatedAt           time.Time           `json:"createdAt"`
	TechnicalDetails    string              `json:"technicalDetails,omitempty"`
	RequirementCounters RequirementCounters `json:"requirementCounters"`
	Integration         Integration         `json:"integration"`

	// Dir is the project's directory relative to the working directory
	Dir string `json:"-"`
}

// Integration holds optional third-party settings for a project
type Integration struct {
	Jira    *JiraIntegration    `json:"jira,omitempty"`
	Bedrock *BedrockIntegration `json:"bedrock,omitempty"`
}

// JiraIntegration holds the Jira project a project syncs with
type JiraIntegration struct {
	BaseURL    string `json:"baseUrl,omitempty"`
	ProjectKey string `json:"projectKey"`
}

// BedrockIntegration holds knowledge-base settings
type BedrockIntegration struct {
	KnowledgeBaseID string `json:"kbId"`
	Region          string `json:"region,omitempty"`
}
