package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"req-studio/internal/gateway"
	"req-studio/internal/models"
)

// Column maps a row key to its spreadsheet header
type Column struct {
	Key    string
	Header string
}

// Table is one sheet of an export
type Table struct {
	Sheet   string
	Columns []Column
	Rows    []map[string]string
}

// Source is the cached data an export works from
type Source struct {
	// Entries are the documents of one requirement folder
	Entries []models.FileEntry

	// Stories are the user stories of one feature file (US exports)
	Stories []models.UserStory

	// ParentID prefixes story ids in US exports (PRD01 -> PRD01-US1)
	ParentID string

	// FolderPath is the requirement folder, used to find feature files
	FolderPath string
}

// Strategy turns a Source into export tables. The first table is the main one.
type Strategy interface {
	Tables(ctx context.Context, src Source) ([]Table, error)
}

var (
	requirementColumns = []Column{{"id", "ID"}, {"title", "Title"}, {"requirement", "Requirement"}}
	storyColumns       = []Column{{"parentId", "Parent ID"}, {"id", "ID"}, {"name", "Name"}, {"description", "Description"}}
	taskColumns        = []Column{{"parentId", "Parent ID"}, {"id", "ID"}, {"title", "Title"}, {"acceptance", "Acceptance Criteria"}}
	usColumns          = []Column{{"id", "ID"}, {"name", "Name"}, {"description", "Description"}}
)

const (
	storiesSheet = "User Stories"
	tasksSheet   = "Tasks"
)

// baseStrategy exports one row per document
type baseStrategy struct {
	reqType models.RequirementType
}

func (b baseStrategy) Tables(_ context.Context, src Source) ([]Table, error) {
	return []Table{b.mainTable(src.Entries)}, nil
}

func (b baseStrategy) mainTable(entries []models.FileEntry) Table {
	t := Table{Sheet: string(b.reqType), Columns: requirementColumns, Rows: []map[string]string{}}
	for _, e := range entries {
		t.Rows = append(t.Rows, map[string]string{
			"id":          gateway.RequirementID(e.FileName),
			"title":       e.Content.Title,
			"requirement": e.Content.Requirement,
		})
	}
	return t
}

// prdStrategy adds the stories and tasks from each PRD's feature file
type prdStrategy struct {
	baseStrategy
	fs gateway.FileSystem
}

func (p prdStrategy) Tables(ctx context.Context, src Source) ([]Table, error) {
	stories := Table{Sheet: storiesSheet, Columns: storyColumns, Rows: []map[string]string{}}
	tasks := Table{Sheet: tasksSheet, Columns: taskColumns, Rows: []map[string]string{}}

	for _, e := range src.Entries {
		prdID := gateway.RequirementID(e.FileName)
		ff, err := p.readFeatures(ctx, path.Join(src.FolderPath, gateway.FeatureFileFor(e.FileName)))
		if err != nil {
			return nil, err
		}
		appendStoryRows(&stories, &tasks, prdID, ff.Features)
	}

	return []Table{p.mainTable(src.Entries), stories, tasks}, nil
}

func (p prdStrategy) readFeatures(ctx context.Context, featurePath string) (models.FeatureFile, error) {
	var ff models.FeatureFile
	raw, err := p.fs.ReadFile(ctx, featurePath)
	if errors.Is(err, gateway.ErrNotFound) {
		return ff, nil
	}
	if err != nil {
		return ff, fmt.Errorf("failed to read %s: %w", featurePath, err)
	}
	if err := json.Unmarshal([]byte(raw), &ff); err != nil {
		return ff, fmt.Errorf("failed to parse %s: %w", featurePath, err)
	}
	return ff, nil
}

// usStrategy exports the stories of one feature file
type usStrategy struct{}

func (usStrategy) Tables(_ context.Context, src Source) ([]Table, error) {
	main := Table{Sheet: string(models.TypeUS), Columns: usColumns, Rows: []map[string]string{}}
	for _, s := range src.Stories {
		main.Rows = append(main.Rows, map[string]string{
			"id":          compositeID(src.ParentID, s.ID),
			"name":        s.Name,
			"description": s.Description,
		})
	}

	tasks := Table{Sheet: tasksSheet, Columns: taskColumns, Rows: []map[string]string{}}
	for _, s := range src.Stories {
		appendTaskRows(&tasks, compositeID(src.ParentID, s.ID), s.Tasks)
	}

	return []Table{main, tasks}, nil
}

func appendStoryRows(stories, tasks *Table, parentID string, features []models.UserStory) {
	for _, s := range features {
		storyID := compositeID(parentID, s.ID)
		stories.Rows = append(stories.Rows, map[string]string{
			"parentId":    parentID,
			"id":          storyID,
			"name":        s.Name,
			"description": s.Description,
		})
		appendTaskRows(tasks, storyID, s.Tasks)
	}
}

func appendTaskRows(tasks *Table, storyID string, list []models.Task) {
	for _, task := range list {
		tasks.Rows = append(tasks.Rows, map[string]string{
			"parentId":   storyID,
			"id":         compositeID(storyID, task.ID),
			"title":      task.List,
			"acceptance": task.Acceptance,
		})
	}
}

func compositeID(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + "-" + id
}
