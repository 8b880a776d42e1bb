package service

import (
	"context"
	"fmt"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/repository"
	"go.uber.org/zap"
)

// DraftService keeps the unsaved expose form between sessions
type DraftService struct {
	store  *repository.DraftStore
	logger *zap.Logger
}

func NewDraftService(store *repository.DraftStore, logger *zap.Logger) *DraftService {
	return &DraftService{store: store, logger: logger}
}

func (s *DraftService) Get(ctx context.Context) (domain.DraftForm, error) {
	draft, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return draft, nil
}

// Save replaces the draft. Rapid successive saves are collapsed into one write.
func (s *DraftService) Save(ctx context.Context, draft domain.DraftForm) (domain.DraftForm, error) {
	if draft == nil {
		draft = domain.DraftForm{}
	}
	if err := s.store.Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return draft, nil
}

func (s *DraftService) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}
