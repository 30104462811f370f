package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
	"req-studio/internal/store"
)

// AssociationError is returned when a requirement is still referenced by
// business processes and cannot be archived
type AssociationError struct {
	File              string
	BusinessProcesses []string
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("%s is referenced by %s", e.File, strings.Join(e.BusinessProcesses, ", "))
}

// CreatedRequirement identifies a newly written base file
type CreatedRequirement struct {
	ID     string `json:"id"`
	File   string `json:"file"`
	Number int    `json:"number"`
}

// FolderSummary counts the documents of one requirement folder
type FolderSummary struct {
	Type     models.RequirementType `json:"type"`
	Active   int                    `json:"active"`
	Archived int                    `json:"archived"`
	Counter  int                    `json:"counter"`
}

// RequirementService creates and archives requirement documents of the
// selected project
type RequirementService struct {
	store  *store.Store
	fs     gateway.FileSystem
	logger *log.Logger
}

// NewRequirementService creates a new requirement service
func NewRequirementService(st *store.Store, fs gateway.FileSystem, logger *log.Logger) *RequirementService {
	return &RequirementService{store: st, fs: fs, logger: helpers.OrDiscard(logger)}
}

// Create writes doc as the next base file of type t. A PRD also gets an
// empty feature file under the same number.
func (s *RequirementService) Create(ctx context.Context, t models.RequirementType, doc models.Document) (CreatedRequirement, error) {
	if !t.IsFolderType() {
		return CreatedRequirement{}, fmt.Errorf("%s documents are not stored as files", t)
	}

	folder, err := s.store.FolderPath(t)
	if err != nil {
		return CreatedRequirement{}, err
	}

	n, err := s.store.CreateFile(ctx, folder, doc, store.CreateOptions{})
	if err != nil {
		return CreatedRequirement{}, err
	}
	created := CreatedRequirement{
		ID:     string(t) + gateway.PadID(n),
		File:   gateway.BaseFileName(string(t), n),
		Number: n,
	}

	if t == models.TypePRD {
		empty := models.FeatureFile{}
		empty.Normalize()
		if _, err := s.store.CreateFile(ctx, folder, empty, store.CreateOptions{FeatureFile: true, Number: n}); err != nil {
			return created, fmt.Errorf("created %s but failed to create its feature file: %w", created.File, err)
		}
	}

	s.logger.Info("requirement created", "id", created.ID)
	return created, nil
}

// Archive archives one base file. BRDs and PRDs still selected by a
// business process are refused with an *AssociationError.
func (s *RequirementService) Archive(ctx context.Context, t models.RequirementType, file string) error {
	refs, err := s.store.CheckAssociations(ctx, string(t), file)
	if err != nil {
		return fmt.Errorf("failed to check associations: %w", err)
	}
	if len(refs) > 0 {
		return &AssociationError{File: file, BusinessProcesses: refs}
	}

	p, err := s.store.DocumentPath(string(t), file)
	if err != nil {
		return err
	}
	return s.store.ArchiveFile(ctx, p)
}

// Summary counts active and archived documents per requirement folder
func (s *RequirementService) Summary(ctx context.Context) ([]FolderSummary, error) {
	project, ok := s.store.SelectedProject()
	if !ok {
		return nil, store.ErrNoProjectSelected
	}

	folders, err := s.fs.GetFolders(ctx, project.Dir, gateway.AllBaseFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to list project files: %w", err)
	}

	counts := make(map[string]models.Folder, len(folders))
	for _, f := range folders {
		counts[f.Name] = f
	}

	summary := make([]FolderSummary, 0, len(models.FolderTypes))
	for _, t := range models.FolderTypes {
		row := FolderSummary{Type: t, Counter: project.RequirementCounters[t]}
		for _, name := range counts[string(t)].Children {
			if gateway.IsArchived(name) {
				row.Archived++
			} else {
				row.Active++
			}
		}
		summary = append(summary, row)
	}
	return summary, nil
}
