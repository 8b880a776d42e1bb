package service

import (
	"context"
	"fmt"
	"time"

	"github.com/maklermate/maklermate-api/internal/auth"
	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/query"
	"github.com/maklermate/maklermate-api/internal/repository"
	"github.com/maklermate/maklermate-api/internal/transfer"
	"go.uber.org/zap"
)

type LeadService struct {
	repo   *repository.LeadRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewLeadService(repo *repository.LeadRepository, logger *zap.Logger) *LeadService {
	return &LeadService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *LeadService) Create(ctx context.Context, req *domain.CreateLeadRequest) (*domain.Lead, error) {
	lead, err := s.repo.Create(ctx, domain.Lead{
		Name:     req.Name,
		Contact:  req.Contact,
		Type:     domain.LeadType(req.Type),
		Status:   domain.LeadStatus(req.Status),
		Location: req.Location,
		Note:     req.Note,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	s.logger.Info("Lead created",
		zap.String("lead_id", lead.ID),
		zap.String("user_id", auth.UserIDFromContext(ctx)))
	return &lead, nil
}

func (s *LeadService) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return &lead, nil
}

// List returns the caller's leads filtered, searched and sorted by opts
func (s *LeadService) List(ctx context.Context, opts query.Options) ([]domain.Lead, error) {
	leads, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return query.Apply(leads, opts), nil
}

func (s *LeadService) Update(ctx context.Context, id string, req *domain.UpdateLeadRequest) (*domain.Lead, error) {
	lead, err := s.repo.Update(ctx, id, func(l domain.Lead) (domain.Lead, error) {
		if req.Name != nil {
			l.Name = *req.Name
		}
		if req.Contact != nil {
			l.Contact = *req.Contact
		}
		if req.Type != nil {
			l.Type = domain.LeadType(*req.Type)
		}
		if req.Status != nil {
			l.Status = domain.LeadStatus(*req.Status)
		}
		if req.Location != nil {
			l.Location = *req.Location
		}
		if req.Note != nil {
			l.Note = *req.Note
		}
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	s.logger.Info("Lead updated", zap.String("lead_id", id))
	return &lead, nil
}

func (s *LeadService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	s.logger.Info("Lead deleted", zap.String("lead_id", id))
	return nil
}

// BulkUpdateStatus sets one status on every listed lead. Unknown ids are skipped.
func (s *LeadService) BulkUpdateStatus(ctx context.Context, req *domain.BulkStatusRequest) (*domain.BulkResult, error) {
	status := domain.LeadStatus(req.Status)
	n, err := s.repo.UpdateMany(ctx, req.IDs, func(l domain.Lead) (domain.Lead, error) {
		l.Status = status
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update lead status: %w", err)
	}

	s.logger.Info("Lead status updated in bulk",
		zap.String("status", req.Status),
		zap.Int("requested", len(req.IDs)),
		zap.Int("affected", n))
	return &domain.BulkResult{Requested: len(req.IDs), Affected: n}, nil
}

// BulkDelete removes every listed lead. Unknown ids are skipped.
func (s *LeadService) BulkDelete(ctx context.Context, req *domain.BulkDeleteRequest) (*domain.BulkResult, error) {
	n, err := s.repo.DeleteMany(ctx, req.IDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete leads: %w", err)
	}
	s.logger.Info("Leads deleted in bulk", zap.Int("requested", len(req.IDs)), zap.Int("affected", n))
	return &domain.BulkResult{Requested: len(req.IDs), Affected: n}, nil
}

// DeleteAll clears the caller's lead collection
func (s *LeadService) DeleteAll(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to delete leads: %w", err)
	}
	s.logger.Warn("All leads deleted", zap.String("user_id", auth.UserIDFromContext(ctx)))
	return nil
}

// Stats counts leads per status and type. Every known value is present,
// including those with zero leads.
func (s *LeadService) Stats(ctx context.Context) (*domain.LeadStats, error) {
	leads, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}

	stats := &domain.LeadStats{
		Total:    len(leads),
		ByStatus: make(map[domain.LeadStatus]int),
		ByType:   make(map[domain.LeadType]int),
	}
	for _, st := range domain.AllLeadStatuses() {
		stats.ByStatus[st] = 0
	}
	for _, t := range domain.AllLeadTypes() {
		stats.ByType[t] = 0
	}
	for _, l := range leads {
		stats.ByStatus[l.Status]++
		stats.ByType[l.Type]++
	}
	return stats, nil
}

// Import merges a JSON array of leads into the collection. Leads whose id
// already exists are skipped.
func (s *LeadService) Import(ctx context.Context, data []byte) (*domain.ImportResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImport
	}
	leads, err := transfer.ParseLeads(data)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.Merge(ctx, leads)
	if err != nil {
		return nil, fmt.Errorf("failed to import leads: %w", err)
	}

	s.logger.Info("Leads imported", zap.Int("total", len(leads)), zap.Int("imported", n))
	return &domain.ImportResult{Total: len(leads), Imported: n, Skipped: len(leads) - n}, nil
}

// Export renders the leads selected by opts in format
func (s *LeadService) Export(ctx context.Context, format ExportFormat, opts query.Options) (*Export, error) {
	leads, err := s.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case FormatJSON:
		data, err = transfer.ExportJSON(leads)
		if err != nil {
			return nil, fmt.Errorf("failed to encode leads: %w", err)
		}
	case FormatCSV:
		data = transfer.ExportLeadsCSV(leads)
	case FormatText:
		data = []byte(transfer.ExportLeadsText(leads))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return newExport("leads", format, data, s.now()), nil
}
