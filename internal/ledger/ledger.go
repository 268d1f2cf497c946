// Package ledger writes and reads the location audit trail: linked
// transactions grouping one logical operation and the immutable history rows
// they own.
package ledger

import (
	"time"

	"locationcore/pkg/domain"
)

// CreateTransaction opens a linked transaction stamped with the actor's
// current time and no end time.
func CreateTransaction(tx domain.Transaction, prisonID string, txType domain.TransactionType, detail string, actor domain.Actor) (domain.LinkedTransaction, error) {
	if prisonID == "" {
		return domain.LinkedTransaction{}, domain.Validation(domain.ReasonInvalidRequest, "linked transaction requires a prison id")
	}
	return tx.CreateLinkedTransaction(domain.LinkedTransaction{
		PrisonID:             prisonID,
		TransactionType:      txType,
		TransactionDetail:    detail,
		TransactionInvokedBy: actor.Username,
		TxStartTime:          actor.Now(),
	})
}

// RecordChange appends one history row to an open transaction. Rows whose
// old and new values are equal are not written and the zero row is returned.
func RecordChange(tx domain.Transaction, linked domain.LinkedTransaction, locationID string, attribute domain.HistoryAttribute, oldValue, newValue *string, amendedBy string, amendedDate time.Time) (domain.LocationHistory, bool, error) {
	if sameValue(oldValue, newValue) {
		return domain.LocationHistory{}, false, nil
	}
	row, err := tx.CreateLocationHistory(domain.LocationHistory{
		LocationID:          locationID,
		LinkedTransactionID: linked.ID,
		Attribute:           attribute,
		OldValue:            oldValue,
		NewValue:            newValue,
		AmendedBy:           amendedBy,
		AmendedDate:         amendedDate,
	})
	if err != nil {
		return domain.LocationHistory{}, false, err
	}
	return row, true, nil
}

// CloseTransaction stamps the end time. A transaction can only be closed once.
func CloseTransaction(tx domain.Transaction, linked domain.LinkedTransaction, at time.Time) (domain.LinkedTransaction, error) {
	return tx.UpdateLinkedTransaction(linked.ID, func(l *domain.LinkedTransaction) error {
		end := at
		l.TxEndTime = &end
		return nil
	})
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
