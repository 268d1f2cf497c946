package domain

import "time"

// TransactionType names the logical operation a LinkedTransaction groups.
type TransactionType string

const (
	TransactionLocationCreate     TransactionType = "LOCATION_CREATE"
	TransactionLocationUpdate     TransactionType = "LOCATION_UPDATE"
	TransactionLocationDelete     TransactionType = "LOCATION_DELETE"
	TransactionCapacityChange     TransactionType = "CAPACITY_CHANGE"
	TransactionDeactivate         TransactionType = "DEACTIVATE"
	TransactionReactivate         TransactionType = "REACTIVATE"
	TransactionApprovalRequested  TransactionType = "APPROVAL_REQUESTED"
	TransactionApprovalApproved   TransactionType = "APPROVAL_APPROVED"
	TransactionApprovalRejected   TransactionType = "APPROVAL_REJECTED"
	TransactionApprovalWithdrawn  TransactionType = "APPROVAL_WITHDRAWN"
	TransactionSignedOpCapRequest TransactionType = "SIGNED_OP_CAP_REQUESTED"
)

// LinkedTransaction groups the history rows of one logical operation.
type LinkedTransaction struct {
	Base
	PrisonID             string          `json:"prison_id"`
	TransactionType      TransactionType `json:"transaction_type"`
	TransactionDetail    string          `json:"transaction_detail"`
	TransactionInvokedBy string          `json:"transaction_invoked_by"`
	TxStartTime          time.Time       `json:"tx_start_time"`
	TxEndTime            *time.Time      `json:"tx_end_time,omitempty"`
}

// IsClosed reports whether the end time has been stamped.
func (t LinkedTransaction) IsClosed() bool { return t.TxEndTime != nil }

// Clone returns a deep copy.
func (t LinkedTransaction) Clone() LinkedTransaction {
	out := t
	out.TxEndTime = cloneTime(t.TxEndTime)
	return out
}

// HistoryAttribute names a tracked location attribute.
type HistoryAttribute string

const (
	AttributeCode                    HistoryAttribute = "CODE"
	AttributePath                    HistoryAttribute = "PATH"
	AttributeParent                  HistoryAttribute = "PARENT"
	AttributeLocalName               HistoryAttribute = "LOCAL_NAME"
	AttributeLocationType            HistoryAttribute = "LOCATION_TYPE"
	AttributeStatus                  HistoryAttribute = "STATUS"
	AttributeMaxCapacity             HistoryAttribute = "MAX_CAPACITY"
	AttributeWorkingCapacity         HistoryAttribute = "WORKING_CAPACITY"
	AttributeCertifiedNormalAccom    HistoryAttribute = "CERTIFIED_NORMAL_ACCOMMODATION"
	AttributeCertified               HistoryAttribute = "CERTIFIED"
	AttributeCellMark                HistoryAttribute = "CELL_MARK"
	AttributeInCellSanitation        HistoryAttribute = "IN_CELL_SANITATION"
	AttributeSpecialistCellType      HistoryAttribute = "SPECIALIST_CELL_TYPE"
	AttributeUsedFor                 HistoryAttribute = "USED_FOR"
	AttributeAccommodationType       HistoryAttribute = "ACCOMMODATION_TYPE"
	AttributeConvertedCellType       HistoryAttribute = "CONVERTED_CELL_TYPE"
	AttributeDeactivationReason      HistoryAttribute = "DEACTIVATION_REASON"
	AttributeProposedReactivation    HistoryAttribute = "PROPOSED_REACTIVATION_DATE"
	AttributeApprovalRequest         HistoryAttribute = "APPROVAL_REQUEST"
	AttributeOrderWithinParent       HistoryAttribute = "ORDER_WITHIN_PARENT"
	AttributeSignedOperationCapacity HistoryAttribute = "SIGNED_OPERATION_CAPACITY"
)

// Attributes kept for synchronisation replay only are not displayable.
var hiddenAttributes = map[HistoryAttribute]bool{
	AttributePath:              true,
	AttributeApprovalRequest:   true,
	AttributeOrderWithinParent: true,
}

// Displayable reports whether the attribute appears in change history.
func (a HistoryAttribute) Displayable() bool { return !hiddenAttributes[a] }

// LocationHistory is one immutable attribute change.
type LocationHistory struct {
	ID                  string           `json:"id"`
	PrisonID            string           `json:"prison_id"`
	LocationID          string           `json:"location_id"`
	LinkedTransactionID string           `json:"linked_transaction_id"`
	Attribute           HistoryAttribute `json:"attribute"`
	OldValue            *string          `json:"old_value,omitempty"`
	NewValue            *string          `json:"new_value,omitempty"`
	AmendedBy           string           `json:"amended_by"`
	AmendedDate         time.Time        `json:"amended_date"`
}

// Clone returns a deep copy.
func (h LocationHistory) Clone() LocationHistory {
	out := h
	if h.OldValue != nil {
		v := *h.OldValue
		out.OldValue = &v
	}
	if h.NewValue != nil {
		v := *h.NewValue
		out.NewValue = &v
	}
	return out
}
