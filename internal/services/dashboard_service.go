package services

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"studyforge/internal/features"
	"studyforge/internal/models"
)

// DashboardTopN is the size of both top-tools lists
const DashboardTopN = 5

const (
	AffirmationSignedOut = "Log in to discover your daily affirmation."
	AffirmationFallback  = "Embrace every challenge as an opportunity for growth."
)

// DashboardFeature is the browse entry of one feature
type DashboardFeature struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Example     string             `json:"example"`
	Guide       string             `json:"guide"`
	Input       features.InputSpec `json:"input"`
}

// DashboardCategory is one browse group
type DashboardCategory struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Features    []DashboardFeature `json:"features"`
}

// Dashboard is the composed landing page
type Dashboard struct {
	Broadcast      *models.BroadcastMessage `json:"broadcast,omitempty"`
	UserTopTools   []models.ToolUsage       `json:"userTopTools"` // null when signed out
	GlobalTopTools []models.ToolUsage       `json:"globalTopTools,omitempty"`
	Categories     []DashboardCategory      `json:"categories"`
}

// DashboardService composes the dashboard from the catalog, site settings
// and usage counters
type DashboardService struct {
	registry  *features.Registry
	site      *SiteService
	usage     *UsageService
	generator Generator
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(registry *features.Registry, site *SiteService, usage *UsageService, generator Generator) *DashboardService {
	return &DashboardService{
		registry:  registry,
		site:      site,
		usage:     usage,
		generator: generator,
	}
}

// Compose reads every section concurrently. A failed read empties its own
// section and is logged; the rest of the dashboard still renders.
func (s *DashboardService) Compose(ctx context.Context, session *models.Session) *Dashboard {
	var (
		flags     map[string]bool
		broadcast *models.BroadcastMessage
		globalTop []models.ToolUsage
		userTop   []models.ToolUsage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if flags, err = s.site.Flags(gctx); err != nil {
			slog.Warn("dashboard: failed to read feature flags", "error", err)
			flags = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if broadcast, err = s.site.ActiveBroadcast(gctx); err != nil {
			slog.Warn("dashboard: failed to read broadcast", "error", err)
			broadcast = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if globalTop, err = s.usage.TopGlobal(gctx, DashboardTopN); err != nil {
			slog.Warn("dashboard: failed to read global usage", "error", err)
			globalTop = nil
		}
		return nil
	})
	if session.Authenticated() {
		g.Go(func() error {
			var err error
			if userTop, err = s.usage.TopUser(gctx, session.UserID, DashboardTopN); err != nil {
				slog.Warn("dashboard: failed to read user usage", "user_id", session.UserID, "error", err)
				userTop = nil
			}
			return nil
		})
	}
	_ = g.Wait() // sections degrade instead of failing

	dash := &Dashboard{
		Broadcast:      broadcast,
		GlobalTopTools: globalTop,
		Categories:     s.categories(flags),
	}
	if session.Authenticated() {
		dash.UserTopTools = userTop
		if dash.UserTopTools == nil {
			dash.UserTopTools = []models.ToolUsage{}
		}
	}
	return dash
}

// categories groups enabled features in catalog order. Groups with no
// enabled feature are dropped.
func (s *DashboardService) categories(flags map[string]bool) []DashboardCategory {
	out := []DashboardCategory{}
	for _, cat := range s.registry.Categories() {
		group := DashboardCategory{Name: cat.Name, Description: cat.Description}
		for _, d := range cat.Features {
			if enabled, ok := flags[d.ID]; ok && !enabled {
				continue
			}
			group.Features = append(group.Features, DashboardFeature{
				ID:          d.ID,
				Title:       d.Title,
				Description: d.Description,
				Example:     d.Example,
				Guide:       d.Guide,
				Input:       d.Input,
			})
		}
		if len(group.Features) > 0 {
			out = append(out, group)
		}
	}
	return out
}

// Affirmation returns the daily affirmation for the caller. It never fails:
// anonymous callers and generation errors get fixed sentences.
func (s *DashboardService) Affirmation(ctx context.Context, session *models.Session) string {
	if !session.Authenticated() {
		return AffirmationSignedOut
	}
	if s.generator == nil {
		return AffirmationFallback
	}

	text, err := s.generator.Affirmation(ctx)
	if err != nil {
		slog.Warn("failed to generate affirmation", "user_id", session.UserID, "error", err)
		return AffirmationFallback
	}
	return text
}
