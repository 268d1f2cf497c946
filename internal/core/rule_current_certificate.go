package core

import (
	"context"
	"fmt"

	"locationcore/pkg/domain"
)

// CurrentCertificateRule blocks any commit leaving a prison with more than
// one current cell certificate.
func CurrentCertificateRule() domain.Rule {
	return currentCertificateRule{}
}

type currentCertificateRule struct{}

func (currentCertificateRule) Name() string { return "current_certificate" }

func (r currentCertificateRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, prisonID := range touchedBy(changes, domain.EntityCellCertificate) {
		var current []string
		for _, cert := range view.ListCellCertificates(prisonID) {
			if cert.Current {
				current = append(current, cert.ID)
			}
		}
		if len(current) > 1 {
			res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeConflict, domain.ReasonCurrentCertificateConflict,
				domain.EntityCellCertificate, current[len(current)-1],
				fmt.Sprintf("prison %s would have %d current cell certificates: %v", prisonID, len(current), current)))
		}
	}
	return res, nil
}
