package services

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"studyforge/internal/features"
	"studyforge/internal/models"
)

const (
	flagsCacheKey     = "flags"
	broadcastCacheKey = "broadcast"
)

// SiteService serves feature flags and the broadcast banner with a short
// read cache. Writes go straight to the store and drop the cached entry.
type SiteService struct {
	store    SiteStore
	registry *features.Registry
	cache    *cache.Cache
}

// NewSiteService creates a new site service. ttl bounds how stale a read
// may be after a write made by another server instance.
func NewSiteService(store SiteStore, registry *features.Registry, ttl time.Duration) *SiteService {
	return &SiteService{
		store:    store,
		registry: registry,
		cache:    cache.New(ttl, 2*ttl),
	}
}

// Flags returns the stored flags. Absent ids are enabled.
func (s *SiteService) Flags(ctx context.Context) (map[string]bool, error) {
	if cached, ok := s.cache.Get(flagsCacheKey); ok {
		return maps.Clone(cached.(map[string]bool)), nil
	}

	flags, err := s.store.Flags(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(flagsCacheKey, flags)
	return maps.Clone(flags), nil
}

// FeatureFlags returns the effective flag of every catalog feature
func (s *SiteService) FeatureFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	flags, err := s.Flags(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.FeatureFlag, 0, s.registry.Len())
	for _, d := range s.registry.All() {
		enabled, ok := flags[d.ID]
		out = append(out, models.FeatureFlag{FeatureID: d.ID, IsEnabled: !ok || enabled})
	}
	return out, nil
}

// SetFlag enables or disables a catalog feature
func (s *SiteService) SetFlag(ctx context.Context, featureID string, enabled bool) error {
	if _, ok := s.registry.Get(featureID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, featureID)
	}
	if err := s.store.SetFlag(ctx, featureID, enabled); err != nil {
		return err
	}
	s.cache.Delete(flagsCacheKey)
	return nil
}

// Broadcast returns the stored banner, active or not, or nil when unset
func (s *SiteService) Broadcast(ctx context.Context) (*models.BroadcastMessage, error) {
	if cached, ok := s.cache.Get(broadcastCacheKey); ok {
		msg, _ := cached.(*models.BroadcastMessage)
		if msg == nil {
			return nil, nil
		}
		copied := *msg
		return &copied, nil
	}

	msg, err := s.store.Broadcast(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(broadcastCacheKey, msg)
	if msg == nil {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

// ActiveBroadcast returns the banner only when it is active and non-blank
func (s *SiteService) ActiveBroadcast(ctx context.Context) (*models.BroadcastMessage, error) {
	msg, err := s.Broadcast(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	if !msg.IsActive || strings.TrimSpace(msg.Message) == "" {
		return nil, nil
	}
	return msg, nil
}

// SetBroadcast replaces the banner message and its active state
func (s *SiteService) SetBroadcast(ctx context.Context, message string, active bool) error {
	msg := models.BroadcastMessage{Message: strings.TrimSpace(message), IsActive: active}
	if err := s.store.SetBroadcast(ctx, msg); err != nil {
		return err
	}
	s.cache.Delete(broadcastCacheKey)
	return nil
}
