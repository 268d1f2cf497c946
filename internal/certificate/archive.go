package certificate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"locationcore/internal/blob"
	"locationcore/pkg/domain"
)

// Archive keeps a write-once JSON copy of every certificate in blob storage.
type Archive struct {
	store blob.Store
}

func NewArchive(store blob.Store) *Archive {
	return &Archive{store: store}
}

// Key returns the blob key of a certificate.
func Key(prisonID, certificateID string) string {
	return fmt.Sprintf("certificates/%s/%s.json", prisonID, certificateID)
}

// Put writes cert. Re-archiving an already stored certificate is a no-op.
func (a *Archive) Put(ctx context.Context, cert domain.CellCertificate) (blob.Info, error) {
	key := Key(cert.PrisonID, cert.ID)
	// The archived copy records the certificate as issued.
	cert.Current = true
	data, err := json.Marshal(cert)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode certificate %s: %w", cert.ID, err)
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"prison":           cert.PrisonID,
			"approval-request": cert.ApprovalRequestID,
			"working-capacity": strconv.Itoa(cert.TotalWorkingCapacity),
		},
	})
	if errors.Is(err, blob.ErrExists) {
		return a.store.Head(ctx, key)
	}
	return info, err
}

// Get reads an archived certificate.
func (a *Archive) Get(ctx context.Context, prisonID, certificateID string) (domain.CellCertificate, error) {
	_, body, err := a.store.Get(ctx, Key(prisonID, certificateID))
	if errors.Is(err, blob.ErrNotFound) {
		return domain.CellCertificate{}, domain.WrapError(err, domain.CodeNotFound, domain.ReasonCertificateNotFound,
			"cell certificate %s is not archived", certificateID)
	}
	if err != nil {
		return domain.CellCertificate{}, err
	}
	defer func() { _ = body.Close() }()
	var cert domain.CellCertificate
	if err := json.NewDecoder(body).Decode(&cert); err != nil {
		return domain.CellCertificate{}, fmt.Errorf("decode certificate %s: %w", certificateID, err)
	}
	return cert, nil
}

// List returns the archived certificates of a prison ordered by key, which
// is creation order since ids are time ordered.
func (a *Archive) List(ctx context.Context, prisonID string) ([]blob.Info, error) {
	return a.store.List(ctx, fmt.Sprintf("certificates/%s/", prisonID))
}
