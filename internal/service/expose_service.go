package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/query"
	"github.com/maklermate/maklermate-api/internal/repository"
	"github.com/maklermate/maklermate-api/internal/textgen"
	"github.com/maklermate/maklermate-api/internal/transfer"
	"go.uber.org/zap"
)

type ExposeService struct {
	repo      *repository.ExposeRepository
	generator textgen.Generator
	logger    *zap.Logger
	now       func() time.Time
}

// NewExposeService creates the service. generator may be nil, in which case
// Generate returns ErrGeneratorUnavailable.
func NewExposeService(repo *repository.ExposeRepository, generator textgen.Generator, logger *zap.Logger) *ExposeService {
	return &ExposeService{
		repo:      repo,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ExposeService) Create(ctx context.Context, req *domain.CreateExposeRequest) (*domain.SavedExpose, error) {
	expose, err := s.repo.Create(ctx, domain.SavedExpose{
		FormData:      req.FormData,
		Output:        req.Output,
		SelectedStyle: domain.ExposeStyle(req.SelectedStyle),
		Images:        req.Images,
		Captions:      req.Captions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create expose: %w", err)
	}

	s.logger.Info("Expose saved",
		zap.String("expose_id", expose.ID),
		zap.Int("images", len(expose.Images)))
	return &expose, nil
}

func (s *ExposeService) GetByID(ctx context.Context, id string) (*domain.SavedExpose, error) {
	expose, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get expose: %w", err)
	}
	return &expose, nil
}

// List returns saved exposes matching search, newest first
func (s *ExposeService) List(ctx context.Context, search string) ([]domain.SavedExpose, error) {
	exposes, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list exposes: %w", err)
	}
	out := query.SearchExposes(exposes, search)
	newestFirst(out)
	return out, nil
}

func (s *ExposeService) Update(ctx context.Context, id string, req *domain.UpdateExposeRequest) (*domain.SavedExpose, error) {
	return s.mutate(ctx, id, "failed to update expose", func(e *domain.SavedExpose) error {
		if req.FormData != nil {
			e.FormData = req.FormData
		}
		if req.Output != nil {
			e.Output = *req.Output
		}
		if req.SelectedStyle != nil {
			e.SelectedStyle = domain.ExposeStyle(*req.SelectedStyle)
		}
		return nil
	})
}

func (s *ExposeService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete expose: %w", err)
	}
	s.logger.Info("Expose deleted", zap.String("expose_id", id))
	return nil
}

func (s *ExposeService) BulkDelete(ctx context.Context, req *domain.BulkDeleteRequest) (*domain.BulkResult, error) {
	n, err := s.repo.DeleteMany(ctx, req.IDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete exposes: %w", err)
	}
	return &domain.BulkResult{Requested: len(req.IDs), Affected: n}, nil
}

// DeleteAll clears the caller's expose collection
func (s *ExposeService) DeleteAll(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to delete exposes: %w", err)
	}
	s.logger.Warn("All exposes deleted")
	return nil
}

// AddImage appends an image with its caption
func (s *ExposeService) AddImage(ctx context.Context, id string, req *domain.AddImageRequest) (*domain.SavedExpose, error) {
	return s.mutate(ctx, id, "failed to add image", func(e *domain.SavedExpose) error {
		e.AddImage(req.Image, req.Caption)
		return nil
	})
}

// RemoveImage drops the image at index together with its caption
func (s *ExposeService) RemoveImage(ctx context.Context, id string, index int) (*domain.SavedExpose, error) {
	return s.mutate(ctx, id, "failed to remove image", func(e *domain.SavedExpose) error {
		return e.RemoveImage(index)
	})
}

// MoveImage reorders an image and its caption
func (s *ExposeService) MoveImage(ctx context.Context, id string, req *domain.MoveImageRequest) (*domain.SavedExpose, error) {
	return s.mutate(ctx, id, "failed to move image", func(e *domain.SavedExpose) error {
		return e.MoveImage(req.From, req.To)
	})
}

// SetCaption replaces the caption of the image at index
func (s *ExposeService) SetCaption(ctx context.Context, id string, index int, req *domain.CaptionRequest) (*domain.SavedExpose, error) {
	return s.mutate(ctx, id, "failed to set caption", func(e *domain.SavedExpose) error {
		return e.SetCaption(index, req.Caption)
	})
}

func (s *ExposeService) mutate(ctx context.Context, id, msg string, fn func(*domain.SavedExpose) error) (*domain.SavedExpose, error) {
	expose, err := s.repo.Update(ctx, id, func(e domain.SavedExpose) (domain.SavedExpose, error) {
		err := fn(&e)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return &expose, nil
}

// Generate asks the text generator for an expose text. With req.Save the
// text is stored together with the form inputs.
func (s *ExposeService) Generate(ctx context.Context, req *domain.GenerateExposeRequest) (*domain.GenerateExposeResponse, error) {
	if s.generator == nil {
		return nil, ErrGeneratorUnavailable
	}
	style := domain.ExposeStyle(req.Style)
	if !style.Valid() {
		style = domain.ExposeStyleEmotional
	}

	text, err := s.generator.Generate(ctx, textgen.PromptFor(req.FormData, style))
	if err != nil {
		return nil, fmt.Errorf("failed to generate expose: %w", err)
	}

	resp := &domain.GenerateExposeResponse{Output: text}
	if req.Save {
		saved, err := s.Create(ctx, &domain.CreateExposeRequest{
			FormData:      req.FormData,
			Output:        text,
			SelectedStyle: string(style),
		})
		if err != nil {
			return nil, err
		}
		resp.Expose = saved
	}
	return resp, nil
}

// Import merges a JSON array of exposes; existing ids are skipped
func (s *ExposeService) Import(ctx context.Context, data []byte) (*domain.ImportResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImport
	}
	exposes, err := transfer.ParseExposes(data)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.Merge(ctx, exposes)
	if err != nil {
		return nil, fmt.Errorf("failed to import exposes: %w", err)
	}

	s.logger.Info("Exposes imported", zap.Int("total", len(exposes)), zap.Int("imported", n))
	return &domain.ImportResult{Total: len(exposes), Imported: n, Skipped: len(exposes) - n}, nil
}

// Export renders the exposes matching search as JSON or CSV
func (s *ExposeService) Export(ctx context.Context, format ExportFormat, search string) (*Export, error) {
	exposes, err := s.List(ctx, search)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case FormatJSON:
		data, err = transfer.ExportJSON(exposes)
		if err != nil {
			return nil, fmt.Errorf("failed to encode exposes: %w", err)
		}
	case FormatCSV:
		data = transfer.ExportExposesCSV(exposes)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return newExport("exposes", format, data, s.now()), nil
}

func newestFirst(exposes []domain.SavedExpose) {
	sort.SliceStable(exposes, func(i, j int) bool {
		return exposes[i].Created().After(exposes[j].Created())
	})
}
