// Package seed loads YAML fixture files into the folder and history stores.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"bilinote/internal/domain"
	"bilinote/internal/domain/services"
)

// Fixture is the on-disk seed format.
//
//	folders:
//	  - id: study
//	    name: Study
//	    children:
//	      - id: math
//	        name: Math
//	history:
//	  - task_id: t1
//	    status: SUCCESS
//	    platform: bilibili
//	    folder_id: math
type Fixture struct {
	Folders []FolderFixture  `yaml:"folders"`
	History []map[string]any `yaml:"history"`
}

// FolderFixture is one folder plus its nested children
type FolderFixture struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Expanded *bool           `yaml:"expanded"`
	Children []FolderFixture `yaml:"children"`
}

// Result counts what Apply did
type Result struct {
	FoldersCreated int `json:"folders_created"`
	FoldersSkipped int `json:"folders_skipped"`
	HistoryCreated int `json:"history_created"`
	HistoryMerged  int `json:"history_merged"`
}

// LoadFile parses a fixture file
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML
func Parse(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &fx, nil
}

// Seeder applies fixtures through the service layer so every invariant the
// API enforces holds for seeded data too.
type Seeder struct {
	folders services.FolderService
	upsert  services.UpsertService
	logger  *slog.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(folders services.FolderService, upsert services.UpsertService, logger *slog.Logger) *Seeder {
	return &Seeder{
		folders: folders,
		upsert:  upsert,
		logger:  logger,
	}
}

// Apply creates fixture folders (existing ids are skipped) and upserts
// fixture history. Running it twice leaves the store unchanged.
func (s *Seeder) Apply(ctx context.Context, fx *Fixture) (*Result, error) {
	result := &Result{}

	for i := range fx.Folders {
		if err := s.createFolder(ctx, &fx.Folders[i], nil, result); err != nil {
			return result, err
		}
	}

	for i, entry := range fx.History {
		raw, err := json.Marshal(entry)
		if err != nil {
			return result, fmt.Errorf("history[%d]: %w", i, err)
		}

		upserted, err := s.upsert.Upsert(ctx, raw)
		if err != nil {
			return result, fmt.Errorf("history[%d]: %w", i, err)
		}
		if upserted.Created {
			result.HistoryCreated++
		} else {
			result.HistoryMerged++
		}
	}

	s.logger.Info("seed applied",
		"folders_created", result.FoldersCreated,
		"folders_skipped", result.FoldersSkipped,
		"history_created", result.HistoryCreated,
		"history_merged", result.HistoryMerged,
	)
	return result, nil
}

func (s *Seeder) createFolder(ctx context.Context, f *FolderFixture, parentID *string, result *Result) error {
	if f.ID == "" {
		return fmt.Errorf("folder %q: %w: fixture folders need an id", f.Name, domain.ErrValidation)
	}

	_, err := s.folders.CreateFolder(ctx, &services.CreateFolderRequest{
		ID:         f.ID,
		Name:       f.Name,
		ParentID:   parentID,
		IsExpanded: f.Expanded,
	})
	switch {
	case err == nil:
		result.FoldersCreated++
	case errors.Is(err, domain.ErrConflict):
		s.logger.Debug("seed folder exists", "id", f.ID)
		result.FoldersSkipped++
	default:
		return fmt.Errorf("folder %s: %w", f.ID, err)
	}

	id := f.ID
	for i := range f.Children {
		if err := s.createFolder(ctx, &f.Children[i], &id, result); err != nil {
			return err
		}
	}
	return nil
}
