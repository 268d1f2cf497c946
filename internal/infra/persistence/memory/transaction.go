package memory

import (
	"time"

	"locationcore/pkg/domain"
)

type transaction struct {
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, id, prisonID string, before, after any) {
	change := domain.Change{Entity: entity, Action: action, EntityID: id, PrisonID: prisonID}
	if before != nil {
		change.Before = domain.MustPayloadOf(before)
	}
	if after != nil {
		change.After = domain.MustPayloadOf(after)
	}
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Snapshot() domain.TransactionView {
	return newView(&tx.state)
}

func (tx *transaction) CreateLocation(l domain.Location) (domain.Location, error) {
	if l.ID == "" {
		l.ID = domain.NewID()
	}
	if _, exists := tx.state.locations[l.ID]; exists {
		return domain.Location{}, domain.Conflict(domain.ReasonLocationKeyConflict, "location %q already exists", l.ID)
	}
	if l.PrisonID == "" || l.Code == "" {
		return domain.Location{}, domain.Validation(domain.ReasonInvalidRequest, "location requires prison id and code")
	}
	if !l.LocationType.Valid() {
		return domain.Location{}, domain.Validation(domain.ReasonInvalidRequest, "unknown location type %q", l.LocationType)
	}
	if !l.Status.Valid() {
		return domain.Location{}, domain.Validation(domain.ReasonInvalidRequest, "unknown location status %q", l.Status)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.locations[l.ID] = l.Clone()
	tx.recordChange(domain.EntityLocation, domain.ActionCreate, l.ID, l.PrisonID, nil, l)
	return l.Clone(), nil
}

func (tx *transaction) UpdateLocation(id string, mutator func(*domain.Location) error) (domain.Location, error) {
	current, ok := tx.state.locations[id]
	if !ok {
		return domain.Location{}, domain.NotFound(domain.ReasonLocationNotFound, "location %q not found", id)
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.Location{}, err
	}
	current.ID = id
	current.PrisonID = before.PrisonID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.locations[id] = current.Clone()
	tx.recordChange(domain.EntityLocation, domain.ActionUpdate, id, current.PrisonID, before, current)
	return current.Clone(), nil
}

// DeleteLocation removes a childless DRAFT location.
func (tx *transaction) DeleteLocation(id string) error {
	current, ok := tx.state.locations[id]
	if !ok {
		return domain.NotFound(domain.ReasonLocationNotFound, "location %q not found", id)
	}
	if current.Status != domain.StatusDraft {
		return domain.Validation(domain.ReasonLocationNotDraft, "location %s is %s; only unlocked DRAFT locations can be deleted", current.Key(), current.Status)
	}
	for _, other := range tx.state.locations {
		if other.ParentID != nil && *other.ParentID == id {
			return domain.Validation(domain.ReasonInvalidHierarchy, "location %s still has sub-locations", current.Key())
		}
	}
	delete(tx.state.locations, id)
	tx.recordChange(domain.EntityLocation, domain.ActionDelete, id, current.PrisonID, current, nil)
	return nil
}

func (tx *transaction) CreateApprovalRequest(r domain.ApprovalRequest) (domain.ApprovalRequest, error) {
	if r.ID == "" {
		r.ID = domain.NewID()
	}
	if _, exists := tx.state.requests[r.ID]; exists {
		return domain.ApprovalRequest{}, domain.Conflict(domain.ReasonApprovalRequestAlreadyExists, "approval request %q already exists", r.ID)
	}
	if !r.Kind.Valid() {
		return domain.ApprovalRequest{}, domain.Validation(domain.ReasonInvalidRequest, "unknown approval request kind %q", r.Kind)
	}
	if r.Status == "" {
		r.Status = domain.ApprovalPending
	}
	if r.Status != domain.ApprovalPending {
		return domain.ApprovalRequest{}, domain.Validation(domain.ReasonInvalidRequest, "approval requests are created PENDING, got %s", r.Status)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.requests[r.ID] = r.Clone()
	tx.recordChange(domain.EntityApprovalRequest, domain.ActionCreate, r.ID, r.PrisonID, nil, r)
	return r.Clone(), nil
}

func (tx *transaction) UpdateApprovalRequest(id string, mutator func(*domain.ApprovalRequest) error) (domain.ApprovalRequest, error) {
	current, ok := tx.state.requests[id]
	if !ok {
		return domain.ApprovalRequest{}, domain.NotFound(domain.ReasonApprovalRequestNotFound, "approval request %q not found", id)
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.ApprovalRequest{}, err
	}
	current.ID = id
	current.PrisonID = before.PrisonID
	current.Kind = before.Kind
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.requests[id] = current.Clone()
	tx.recordChange(domain.EntityApprovalRequest, domain.ActionUpdate, id, current.PrisonID, before, current)
	return current.Clone(), nil
}

func (tx *transaction) CreateCellCertificate(c domain.CellCertificate) (domain.CellCertificate, error) {
	if c.ID == "" {
		c.ID = domain.NewID()
	}
	if _, exists := tx.state.certificates[c.ID]; exists {
		return domain.CellCertificate{}, domain.Conflict(domain.ReasonImmutableRecord, "cell certificate %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.certificates[c.ID] = c.Clone()
	tx.recordChange(domain.EntityCellCertificate, domain.ActionCreate, c.ID, c.PrisonID, nil, c)
	return c.Clone(), nil
}

// UpdateCellCertificate only accepts changes to the Current flag.
func (tx *transaction) UpdateCellCertificate(id string, mutator func(*domain.CellCertificate) error) (domain.CellCertificate, error) {
	current, ok := tx.state.certificates[id]
	if !ok {
		return domain.CellCertificate{}, domain.NotFound(domain.ReasonCertificateNotFound, "cell certificate %q not found", id)
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.CellCertificate{}, err
	}
	if !before.SameContent(current) {
		return domain.CellCertificate{}, domain.Conflict(domain.ReasonImmutableRecord, "cell certificate %s is immutable except for its current flag", id)
	}
	current.UpdatedAt = tx.now
	tx.state.certificates[id] = current.Clone()
	tx.recordChange(domain.EntityCellCertificate, domain.ActionUpdate, id, current.PrisonID, before, current)
	return current.Clone(), nil
}

func (tx *transaction) CreateLinkedTransaction(t domain.LinkedTransaction) (domain.LinkedTransaction, error) {
	if t.ID == "" {
		t.ID = domain.NewID()
	}
	if _, exists := tx.state.transactions[t.ID]; exists {
		return domain.LinkedTransaction{}, domain.Conflict(domain.ReasonImmutableRecord, "linked transaction %q already exists", t.ID)
	}
	if t.TxEndTime != nil {
		return domain.LinkedTransaction{}, domain.Validation(domain.ReasonLedgerIncomplete, "linked transaction %s cannot be created closed", t.ID)
	}
	if t.TxStartTime.IsZero() {
		t.TxStartTime = tx.now
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.transactions[t.ID] = t.Clone()
	tx.recordChange(domain.EntityLinkedTransaction, domain.ActionCreate, t.ID, t.PrisonID, nil, t)
	return t.Clone(), nil
}

// UpdateLinkedTransaction only accepts stamping the end time, once.
func (tx *transaction) UpdateLinkedTransaction(id string, mutator func(*domain.LinkedTransaction) error) (domain.LinkedTransaction, error) {
	current, ok := tx.state.transactions[id]
	if !ok {
		return domain.LinkedTransaction{}, domain.NotFound(domain.ReasonTransactionNotFound, "linked transaction %q not found", id)
	}
	if current.IsClosed() {
		return domain.LinkedTransaction{}, domain.Conflict(domain.ReasonImmutableRecord, "linked transaction %s is already closed", id)
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.LinkedTransaction{}, err
	}
	closed := current.TxEndTime
	current = before.Clone()
	current.TxEndTime = closed
	current.UpdatedAt = tx.now
	tx.state.transactions[id] = current.Clone()
	tx.recordChange(domain.EntityLinkedTransaction, domain.ActionUpdate, id, current.PrisonID, before, current)
	return current.Clone(), nil
}

func (tx *transaction) CreateLocationHistory(h domain.LocationHistory) (domain.LocationHistory, error) {
	if h.ID == "" {
		h.ID = domain.NewID()
	}
	if _, exists := tx.state.history[h.ID]; exists {
		return domain.LocationHistory{}, domain.Conflict(domain.ReasonImmutableRecord, "history row %q already exists", h.ID)
	}
	linked, ok := tx.state.transactions[h.LinkedTransactionID]
	if !ok {
		return domain.LocationHistory{}, domain.NotFound(domain.ReasonTransactionNotFound, "linked transaction %q not found", h.LinkedTransactionID)
	}
	if linked.IsClosed() {
		return domain.LocationHistory{}, domain.Conflict(domain.ReasonImmutableRecord, "linked transaction %s is already closed", linked.ID)
	}
	if h.AmendedDate.IsZero() {
		h.AmendedDate = tx.now
	}
	h.PrisonID = linked.PrisonID
	tx.state.history[h.ID] = h.Clone()
	tx.recordChange(domain.EntityLocationHistory, domain.ActionCreate, h.ID, h.PrisonID, nil, h)
	return h.Clone(), nil
}

func (tx *transaction) PutSignedOperationCapacity(s domain.SignedOperationCapacity) (domain.SignedOperationCapacity, error) {
	if s.PrisonID == "" {
		return domain.SignedOperationCapacity{}, domain.Validation(domain.ReasonInvalidRequest, "signed operation capacity requires a prison id")
	}
	existing, exists := tx.state.signedOpCaps[s.PrisonID]
	action := domain.ActionCreate
	var before any
	if exists {
		action = domain.ActionUpdate
		before = existing
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	} else {
		if s.ID == "" {
			s.ID = domain.NewID()
		}
		s.CreatedAt = tx.now
	}
	s.UpdatedAt = tx.now
	tx.state.signedOpCaps[s.PrisonID] = s
	tx.recordChange(domain.EntitySignedOperationCapacity, action, s.ID, s.PrisonID, before, s)
	return s, nil
}
