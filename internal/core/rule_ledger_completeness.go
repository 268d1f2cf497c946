package core

import (
	"context"
	"fmt"

	"locationcore/pkg/domain"
)

// LedgerCompletenessRule requires every linked transaction written in a
// commit to be closed by the end of it.
func LedgerCompletenessRule() domain.Rule {
	return ledgerCompletenessRule{}
}

type ledgerCompletenessRule struct{}

func (ledgerCompletenessRule) Name() string { return "ledger_completeness" }

func (r ledgerCompletenessRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]bool)
	check := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		linked, ok := view.FindLinkedTransaction(id)
		switch {
		case !ok:
			res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeInternal, domain.ReasonLedgerIncomplete,
				domain.EntityLinkedTransaction, id, fmt.Sprintf("linked transaction %s is missing", id)))
		case !linked.IsClosed():
			res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeInternal, domain.ReasonLedgerIncomplete,
				domain.EntityLinkedTransaction, id, fmt.Sprintf("linked transaction %s (%s) was not closed", id, linked.TransactionType)))
		}
	}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityLinkedTransaction:
			check(change.EntityID)
		case domain.EntityLocationHistory:
			if row, ok := decodeChangePayload[domain.LocationHistory](change.After); ok {
				check(row.LinkedTransactionID)
			}
		}
	}
	return res, nil
}
