package services

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/xuri/excelize/v2"

	"studyforge/internal/features"
	"studyforge/internal/models"
)

// UsageService wraps a UsageStore with catalog enrichment and export
type UsageService struct {
	store    UsageStore
	registry *features.Registry
}

// NewUsageService creates a new usage service
func NewUsageService(store UsageStore, registry *features.Registry) *UsageService {
	return &UsageService{store: store, registry: registry}
}

// Track counts one successful generation for a user
func (s *UsageService) Track(ctx context.Context, userID, featureID string) error {
	return s.store.Track(ctx, userID, featureID)
}

// TopUser returns the user's n most used tools
func (s *UsageService) TopUser(ctx context.Context, userID string, n int) ([]models.ToolUsage, error) {
	counts, err := s.store.TopUser(ctx, userID, n)
	if err != nil {
		return nil, err
	}
	return s.enrich(counts), nil
}

// TopGlobal returns the n most used tools across all users
func (s *UsageService) TopGlobal(ctx context.Context, n int) ([]models.ToolUsage, error) {
	counts, err := s.store.TopGlobal(ctx, n)
	if err != nil {
		return nil, err
	}
	return s.enrich(counts), nil
}

// AllGlobal returns every global counter, most used first
func (s *UsageService) AllGlobal(ctx context.Context) ([]models.ToolUsage, error) {
	counts, err := s.store.AllGlobal(ctx)
	if err != nil {
		return nil, err
	}
	return s.enrich(counts), nil
}

// Stats returns the admin usage summary
func (s *UsageService) Stats(ctx context.Context) (*models.AdminStats, error) {
	return s.store.Stats(ctx)
}

// enrich attaches titles and categories. Counters for ids no longer in the
// catalog are skipped.
func (s *UsageService) enrich(counts []models.UsageCount) []models.ToolUsage {
	out := make([]models.ToolUsage, 0, len(counts))
	for _, c := range counts {
		d, ok := s.registry.Get(c.FeatureID)
		if !ok {
			continue
		}
		out = append(out, models.ToolUsage{
			FeatureID: c.FeatureID,
			Title:     d.Title,
			Category:  d.Category,
			Count:     c.Count,
		})
	}
	return out
}

const usageSheet = "Usage"

// ExportXLSX writes the global usage table as a workbook. With byCategory
// set, one extra sheet per category lists every feature including unused ones.
func (s *UsageService) ExportXLSX(ctx context.Context, w io.Writer, byCategory bool) error {
	usage, err := s.AllGlobal(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("⚠️ Failed to close usage workbook: %v", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", usageSheet); err != nil {
		return fmt.Errorf("failed to name usage sheet: %w", err)
	}
	rows := make([][]any, 0, len(usage))
	for i, u := range usage {
		rows = append(rows, []any{i + 1, u.FeatureID, u.Title, u.Category, u.Count})
	}
	if err := writeSheet(f, usageSheet, []any{"Rank", "Feature", "Title", "Category", "Count"}, rows); err != nil {
		return err
	}

	if byCategory {
		counts := make(map[string]int64, len(usage))
		for _, u := range usage {
			counts[u.FeatureID] = u.Count
		}
		for _, cat := range s.registry.Categories() {
			sheet := sheetName(cat.Name)
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("failed to add sheet %q: %w", sheet, err)
			}
			rows := make([][]any, 0, len(cat.Features))
			for _, d := range cat.Features {
				rows = append(rows, []any{d.ID, d.Title, counts[d.ID]})
			}
			if err := writeSheet(f, sheet, []any{"Feature", "Title", "Count"}, rows); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write usage workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header on %q: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d on %q: %w", i+2, sheet, err)
		}
	}
	return nil
}

// sheetName fits a category name into Excel's 31 character sheet limit
func sheetName(name string) string {
	runes := []rune(name)
	if len(runes) > 31 {
		return string(runes[:31])
	}
	return name
}
