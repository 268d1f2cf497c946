// Package certificate generates, queries and archives cell certificates.
package certificate

import (
	"time"

	"locationcore/pkg/domain"
)

// Approval carries who approved the change a certificate records.
type Approval struct {
	RequestID  string
	ApprovedBy string
	ApprovedAt time.Time
}

// Generate freezes the prison's certifiable layout into a new current
// certificate and retires the previous one in the same transaction.
// Certifiable roots are parentless residential locations that are neither
// DRAFT nor ARCHIVED; beneath them DRAFT and non-residential nodes are left out.
func Generate(tx domain.Transaction, prisonID string, approval Approval, signedOperationCapacity int) (domain.CellCertificate, error) {
	h := domain.NewHierarchy(tx.Snapshot().ListLocations(prisonID))
	locations, totals := Layout(h)
	cert := domain.CellCertificate{
		PrisonID:                          prisonID,
		ApprovedBy:                        approval.ApprovedBy,
		ApprovedDate:                      approval.ApprovedAt,
		ApprovalRequestID:                 approval.RequestID,
		TotalWorkingCapacity:              totals.WorkingCapacity,
		TotalMaxCapacity:                  totals.MaxCapacity,
		TotalCertifiedNormalAccommodation: totals.CertifiedNormalAccommodation,
		SignedOperationCapacity:           signedOperationCapacity,
		Current:                           true,
		Locations:                         locations,
	}
	return replaceCurrent(tx, cert)
}

// Layout freezes the certifiable roots of h and sums their capacity. The
// approval workflow uses it to preview a request's effect on the totals.
func Layout(h *domain.Hierarchy) ([]domain.LocationSnapshot, domain.Capacity) {
	locations := []domain.LocationSnapshot{}
	var totals domain.Capacity
	for _, root := range h.Roots() {
		if !certifiable(root) || root.IsPermanentlyDeactivated() {
			continue
		}
		snap, ok := domain.Freeze(h, root.ID, certifiable)
		if !ok {
			continue
		}
		locations = append(locations, snap)
		totals = totals.Add(snap.Capacity)
	}
	return locations, totals
}

// RollSignedOperationCapacity issues a new current certificate that copies
// the current one with a different signed operation capacity. Without a
// current certificate one is generated from the live tree.
func RollSignedOperationCapacity(tx domain.Transaction, prisonID string, approval Approval, signedOperationCapacity int) (domain.CellCertificate, error) {
	previous, ok := tx.Snapshot().CurrentCellCertificate(prisonID)
	if !ok {
		return Generate(tx, prisonID, approval, signedOperationCapacity)
	}
	next := previous.Clone()
	next.Base = domain.Base{}
	next.ApprovedBy = approval.ApprovedBy
	next.ApprovedDate = approval.ApprovedAt
	next.ApprovalRequestID = approval.RequestID
	next.SignedOperationCapacity = signedOperationCapacity
	next.Current = true
	return replaceCurrent(tx, next)
}

func replaceCurrent(tx domain.Transaction, cert domain.CellCertificate) (domain.CellCertificate, error) {
	for _, existing := range tx.Snapshot().ListCellCertificates(cert.PrisonID) {
		if !existing.Current {
			continue
		}
		if _, err := tx.UpdateCellCertificate(existing.ID, func(c *domain.CellCertificate) error {
			c.Current = false
			return nil
		}); err != nil {
			return domain.CellCertificate{}, err
		}
	}
	return tx.CreateCellCertificate(cert)
}

func certifiable(l domain.Location) bool {
	return l.LocationType.IsResidential() && !l.IsDraft()
}
