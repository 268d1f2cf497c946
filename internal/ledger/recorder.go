package ledger

import (
	"strconv"
	"strings"
	"time"

	"locationcore/pkg/domain"
)

// Recorder writes the history of one logical operation. Begin opens the
// linked transaction, Record and Diff append rows, Close stamps the end.
type Recorder struct {
	tx     domain.Transaction
	linked domain.LinkedTransaction
	actor  domain.Actor
	rows   int
}

// Begin opens a linked transaction and returns a recorder bound to it.
func Begin(tx domain.Transaction, prisonID string, txType domain.TransactionType, detail string, actor domain.Actor) (*Recorder, error) {
	linked, err := CreateTransaction(tx, prisonID, txType, detail, actor)
	if err != nil {
		return nil, err
	}
	return &Recorder{tx: tx, linked: linked, actor: actor}, nil
}

// Transaction returns the linked transaction as last written.
func (r *Recorder) Transaction() domain.LinkedTransaction { return r.linked }

// Rows returns the number of history rows written so far.
func (r *Recorder) Rows() int { return r.rows }

// Record appends one row when the value changed.
func (r *Recorder) Record(locationID string, attribute domain.HistoryAttribute, oldValue, newValue *string) error {
	_, written, err := RecordChange(r.tx, r.linked, locationID, attribute, oldValue, newValue, r.actor.Username, r.actor.Now())
	if written {
		r.rows++
	}
	return err
}

// Created records the initial value of every tracked attribute of loc.
func (r *Recorder) Created(loc domain.Location) error {
	return r.Diff(domain.Location{}, loc)
}

// Diff writes one row per tracked attribute that differs between before and
// after. Status is compared on its effective value; locking is recorded
// against the approval request attribute.
func (r *Recorder) Diff(before, after domain.Location) error {
	id := after.ID
	if id == "" {
		id = before.ID
	}
	for _, field := range trackedFields {
		if err := r.Record(id, field.attribute, field.value(before), field.value(after)); err != nil {
			return err
		}
	}
	return nil
}

// Close stamps the transaction end time.
func (r *Recorder) Close() (domain.LinkedTransaction, error) {
	closed, err := CloseTransaction(r.tx, r.linked, r.actor.Now())
	if err != nil {
		return domain.LinkedTransaction{}, err
	}
	r.linked = closed
	return closed, nil
}

type trackedField struct {
	attribute domain.HistoryAttribute
	value     func(domain.Location) *string
}

var trackedFields = []trackedField{
	{domain.AttributeCode, func(l domain.Location) *string { return text(l.Code) }},
	{domain.AttributePath, func(l domain.Location) *string { return text(l.PathHierarchy) }},
	{domain.AttributeParent, func(l domain.Location) *string {
		if l.ParentID == nil {
			return nil
		}
		return text(*l.ParentID)
	}},
	{domain.AttributeLocalName, func(l domain.Location) *string { return text(l.LocalName) }},
	{domain.AttributeLocationType, func(l domain.Location) *string { return text(string(l.LocationType)) }},
	{domain.AttributeStatus, func(l domain.Location) *string { return text(string(l.EffectiveStatus())) }},
	{domain.AttributeMaxCapacity, capacityField(func(c domain.Capacity) int { return c.MaxCapacity })},
	{domain.AttributeWorkingCapacity, capacityField(func(c domain.Capacity) int { return c.WorkingCapacity })},
	{domain.AttributeCertifiedNormalAccom, capacityField(func(c domain.Capacity) int { return c.CertifiedNormalAccommodation })},
	{domain.AttributeCertified, func(l domain.Location) *string {
		if !l.LocationType.IsCell() {
			return nil
		}
		return text(strconv.FormatBool(l.CertifiedCell))
	}},
	{domain.AttributeCellMark, func(l domain.Location) *string { return text(l.CellMark) }},
	{domain.AttributeInCellSanitation, func(l domain.Location) *string {
		if l.InCellSanitation == nil {
			return nil
		}
		return text(strconv.FormatBool(*l.InCellSanitation))
	}},
	{domain.AttributeSpecialistCellType, func(l domain.Location) *string { return joined(l.SpecialistCellTypes) }},
	{domain.AttributeUsedFor, func(l domain.Location) *string { return joined(l.UsedForTypes) }},
	{domain.AttributeAccommodationType, func(l domain.Location) *string { return text(string(l.AccommodationType)) }},
	{domain.AttributeConvertedCellType, func(l domain.Location) *string { return text(l.ConvertedCellType) }},
	{domain.AttributeDeactivationReason, func(l domain.Location) *string { return text(string(l.DeactivatedReason)) }},
	{domain.AttributeProposedReactivation, func(l domain.Location) *string {
		if l.ProposedReactivationDate == nil {
			return nil
		}
		return text(l.ProposedReactivationDate.Format(time.DateOnly))
	}},
	{domain.AttributeApprovalRequest, func(l domain.Location) *string { return text(l.PendingApprovalRequestID) }},
	{domain.AttributeOrderWithinParent, func(l domain.Location) *string {
		if l.Code == "" {
			return nil
		}
		return text(strconv.Itoa(l.Position))
	}},
}

func capacityField(pick func(domain.Capacity) int) func(domain.Location) *string {
	return func(l domain.Location) *string {
		if l.Capacity == nil {
			return nil
		}
		return text(strconv.Itoa(pick(*l.Capacity)))
	}
}

// text maps empty strings to nil so unset attributes compare equal.
func text(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func joined[T ~string](values []T) *string {
	if len(values) == 0 {
		return nil
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return text(strings.Join(parts, ","))
}
