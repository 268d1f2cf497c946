package ledger

import (
	"context"

	"locationcore/pkg/domain"
)

// TransactionHistory is a linked transaction with its rows grouped by attribute.
type TransactionHistory struct {
	Transaction domain.LinkedTransaction                             `json:"transaction"`
	Changes     map[domain.HistoryAttribute][]domain.LocationHistory `json:"changes"`
}

// Service answers audit trail queries against committed state.
type Service struct {
	store domain.PersistentStore
}

func NewService(store domain.PersistentStore) *Service {
	return &Service{store: store}
}

// TransactionHistory returns every row of the transaction, displayable or not.
func (s *Service) TransactionHistory(ctx context.Context, transactionID string) (TransactionHistory, error) {
	var out TransactionHistory
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		linked, ok := v.FindLinkedTransaction(transactionID)
		if !ok {
			return domain.NotFound(domain.ReasonTransactionNotFound, "linked transaction %q not found", transactionID)
		}
		out.Transaction = linked
		out.Changes = make(map[domain.HistoryAttribute][]domain.LocationHistory)
		for _, row := range v.ListTransactionHistory(transactionID) {
			out.Changes[row.Attribute] = append(out.Changes[row.Attribute], row)
		}
		return nil
	})
	return out, err
}

// LocationHistory returns the displayable rows for a location, oldest first.
// Deleted draft locations keep their history.
func (s *Service) LocationHistory(ctx context.Context, locationID string) ([]domain.LocationHistory, error) {
	var out []domain.LocationHistory
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		rows := v.ListLocationHistory(locationID)
		if _, ok := v.FindLocation(locationID); !ok && len(rows) == 0 {
			return domain.NotFound(domain.ReasonLocationNotFound, "location %q not found", locationID)
		}
		for _, row := range rows {
			if row.Attribute.Displayable() {
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

// Transactions lists the linked transactions of a prison in creation order.
func (s *Service) Transactions(ctx context.Context, prisonID string) ([]domain.LinkedTransaction, error) {
	var out []domain.LinkedTransaction
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		out = v.ListLinkedTransactions(prisonID)
		return nil
	})
	return out, err
}
