package certificate

import (
	"context"

	"locationcore/pkg/domain"
)

// Service reads committed certificates.
type Service struct {
	store domain.PersistentStore
}

func NewService(store domain.PersistentStore) *Service {
	return &Service{store: store}
}

// Current returns the prison's current certificate.
func (s *Service) Current(ctx context.Context, prisonID string) (domain.CellCertificate, error) {
	var out domain.CellCertificate
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		cert, ok := v.CurrentCellCertificate(prisonID)
		if !ok {
			return domain.NotFound(domain.ReasonCertificateNotFound, "prison %s has no current cell certificate", prisonID)
		}
		out = cert
		return nil
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id string) (domain.CellCertificate, error) {
	var out domain.CellCertificate
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		cert, ok := v.FindCellCertificate(id)
		if !ok {
			return domain.NotFound(domain.ReasonCertificateNotFound, "cell certificate %q not found", id)
		}
		out = cert
		return nil
	})
	return out, err
}

// List returns every certificate of the prison, oldest first.
func (s *Service) List(ctx context.Context, prisonID string) ([]domain.CellCertificate, error) {
	var out []domain.CellCertificate
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		out = v.ListCellCertificates(prisonID)
		return nil
	})
	return out, err
}
