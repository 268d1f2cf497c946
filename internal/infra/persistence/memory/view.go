package memory

import (
	"cmp"
	"slices"

	"locationcore/pkg/domain"
)

type view struct {
	state *memoryState
}

func newView(state *memoryState) domain.TransactionView {
	return view{state: state}
}

func matchesPrison(prisonID, candidate string) bool {
	return prisonID == "" || prisonID == candidate
}

func byCreation[T any](items []T, key func(T) string) []T {
	slices.SortFunc(items, func(a, b T) int { return cmp.Compare(key(a), key(b)) })
	return items
}

func (v view) ListLocations(prisonID string) []domain.Location {
	out := make([]domain.Location, 0)
	for _, l := range v.state.locations {
		if matchesPrison(prisonID, l.PrisonID) {
			out = append(out, l.Clone())
		}
	}
	return byCreation(out, func(l domain.Location) string { return l.ID })
}

func (v view) FindLocation(id string) (domain.Location, bool) {
	l, ok := v.state.locations[id]
	if !ok {
		return domain.Location{}, false
	}
	return l.Clone(), true
}

func (v view) FindLocationByKey(key string) (domain.Location, bool) {
	for _, l := range v.state.locations {
		if l.Key() == key {
			return l.Clone(), true
		}
	}
	return domain.Location{}, false
}

func (v view) ListApprovalRequests(prisonID string) []domain.ApprovalRequest {
	out := make([]domain.ApprovalRequest, 0)
	for _, r := range v.state.requests {
		if matchesPrison(prisonID, r.PrisonID) {
			out = append(out, r.Clone())
		}
	}
	return byCreation(out, func(r domain.ApprovalRequest) string { return r.ID })
}

func (v view) FindApprovalRequest(id string) (domain.ApprovalRequest, bool) {
	r, ok := v.state.requests[id]
	if !ok {
		return domain.ApprovalRequest{}, false
	}
	return r.Clone(), true
}

func (v view) ListCellCertificates(prisonID string) []domain.CellCertificate {
	out := make([]domain.CellCertificate, 0)
	for _, c := range v.state.certificates {
		if matchesPrison(prisonID, c.PrisonID) {
			out = append(out, c.Clone())
		}
	}
	return byCreation(out, func(c domain.CellCertificate) string { return c.ID })
}

func (v view) FindCellCertificate(id string) (domain.CellCertificate, bool) {
	c, ok := v.state.certificates[id]
	if !ok {
		return domain.CellCertificate{}, false
	}
	return c.Clone(), true
}

func (v view) CurrentCellCertificate(prisonID string) (domain.CellCertificate, bool) {
	var (
		found domain.CellCertificate
		ok    bool
	)
	for _, c := range v.state.certificates {
		if c.PrisonID != prisonID || !c.Current {
			continue
		}
		if !ok || c.ID > found.ID {
			found, ok = c, true
		}
	}
	if !ok {
		return domain.CellCertificate{}, false
	}
	return found.Clone(), true
}

func (v view) ListLinkedTransactions(prisonID string) []domain.LinkedTransaction {
	out := make([]domain.LinkedTransaction, 0)
	for _, t := range v.state.transactions {
		if matchesPrison(prisonID, t.PrisonID) {
			out = append(out, t.Clone())
		}
	}
	return byCreation(out, func(t domain.LinkedTransaction) string { return t.ID })
}

func (v view) FindLinkedTransaction(id string) (domain.LinkedTransaction, bool) {
	t, ok := v.state.transactions[id]
	if !ok {
		return domain.LinkedTransaction{}, false
	}
	return t.Clone(), true
}

func (v view) listHistory(match func(domain.LocationHistory) bool) []domain.LocationHistory {
	out := make([]domain.LocationHistory, 0)
	for _, h := range v.state.history {
		if match(h) {
			out = append(out, h.Clone())
		}
	}
	slices.SortFunc(out, func(a, b domain.LocationHistory) int {
		if c := a.AmendedDate.Compare(b.AmendedDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (v view) ListLocationHistory(locationID string) []domain.LocationHistory {
	return v.listHistory(func(h domain.LocationHistory) bool { return h.LocationID == locationID })
}

func (v view) ListTransactionHistory(transactionID string) []domain.LocationHistory {
	return v.listHistory(func(h domain.LocationHistory) bool { return h.LinkedTransactionID == transactionID })
}

func (v view) FindSignedOperationCapacity(prisonID string) (domain.SignedOperationCapacity, bool) {
	s, ok := v.state.signedOpCaps[prisonID]
	return s, ok
}
