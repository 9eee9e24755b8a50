package services

import (
	"context"
	"fmt"

	"studyforge/internal/features"
	"studyforge/internal/models"
)

// HistoryService scopes history access to the calling user
type HistoryService struct {
	store    HistoryStore
	registry *features.Registry
}

// NewHistoryService creates a new history service
func NewHistoryService(store HistoryStore, registry *features.Registry) *HistoryService {
	return &HistoryService{store: store, registry: registry}
}

func (s *HistoryService) check(session *models.Session, featureID string) error {
	if !session.Authenticated() {
		return fmt.Errorf("history requires a signed-in user")
	}
	if _, ok := s.registry.Get(featureID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, featureID)
	}
	return nil
}

// Append saves a generation for the session's user
func (s *HistoryService) Append(ctx context.Context, session *models.Session, featureID string, input, output any) (*models.HistoryRecord, error) {
	if err := s.check(session, featureID); err != nil {
		return nil, err
	}
	return s.store.Append(ctx, session.UserID, featureID, input, output)
}

// List returns the session user's records for a feature, newest first
func (s *HistoryService) List(ctx context.Context, session *models.Session, featureID string) ([]models.HistoryRecord, error) {
	if err := s.check(session, featureID); err != nil {
		return nil, err
	}
	return s.store.List(ctx, session.UserID, featureID)
}

// Delete removes one of the session user's records
func (s *HistoryService) Delete(ctx context.Context, session *models.Session, featureID, id string) error {
	if err := s.check(session, featureID); err != nil {
		return err
	}
	return s.store.Delete(ctx, session.UserID, featureID, id)
}
