package memory

import (
	"encoding/json"
	"fmt"

	"locationcore/pkg/domain"
)

type memoryState struct {
	locations    map[string]domain.Location
	requests     map[string]domain.ApprovalRequest
	certificates map[string]domain.CellCertificate
	transactions map[string]domain.LinkedTransaction
	history      map[string]domain.LocationHistory
	signedOpCaps map[string]domain.SignedOperationCapacity
}

// Snapshot captures a point-in-time clone of the store state, keyed by id
// (signed operation capacities are keyed by prison).
type Snapshot struct {
	Locations                 map[string]domain.Location                `json:"locations"`
	ApprovalRequests          map[string]domain.ApprovalRequest         `json:"approval_requests"`
	CellCertificates          map[string]domain.CellCertificate         `json:"cell_certificates"`
	LinkedTransactions        map[string]domain.LinkedTransaction       `json:"linked_transactions"`
	LocationHistory           map[string]domain.LocationHistory         `json:"location_history"`
	SignedOperationCapacities map[string]domain.SignedOperationCapacity `json:"signed_operation_capacities"`
}

// Bucket names used by snapshot-based backends.
const (
	BucketLocations                 = "locations"
	BucketApprovalRequests          = "approval_requests"
	BucketCellCertificates          = "cell_certificates"
	BucketLinkedTransactions        = "linked_transactions"
	BucketLocationHistory           = "location_history"
	BucketSignedOperationCapacities = "signed_operation_capacities"
)

// Buckets lists every bucket in a stable order.
var Buckets = []string{
	BucketLocations,
	BucketApprovalRequests,
	BucketCellCertificates,
	BucketLinkedTransactions,
	BucketLocationHistory,
	BucketSignedOperationCapacities,
}

var entityBuckets = map[domain.EntityType]string{
	domain.EntityLocation:                BucketLocations,
	domain.EntityApprovalRequest:         BucketApprovalRequests,
	domain.EntityCellCertificate:         BucketCellCertificates,
	domain.EntityLinkedTransaction:       BucketLinkedTransactions,
	domain.EntityLocationHistory:         BucketLocationHistory,
	domain.EntitySignedOperationCapacity: BucketSignedOperationCapacities,
}

// TouchedBuckets returns the buckets written by changes, in Buckets order.
func TouchedBuckets(changes []domain.Change) []string {
	touched := make(map[string]bool)
	for _, c := range changes {
		if b, ok := entityBuckets[c.Entity]; ok {
			touched[b] = true
		}
	}
	var out []string
	for _, b := range Buckets {
		if touched[b] {
			out = append(out, b)
		}
	}
	return out
}

// MarshalBucket encodes one bucket of the snapshot.
func (s Snapshot) MarshalBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketLocations:
		return json.Marshal(s.Locations)
	case BucketApprovalRequests:
		return json.Marshal(s.ApprovalRequests)
	case BucketCellCertificates:
		return json.Marshal(s.CellCertificates)
	case BucketLinkedTransactions:
		return json.Marshal(s.LinkedTransactions)
	case BucketLocationHistory:
		return json.Marshal(s.LocationHistory)
	case BucketSignedOperationCapacities:
		return json.Marshal(s.SignedOperationCapacities)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// UnmarshalBucket decodes one bucket into the snapshot.
func (s *Snapshot) UnmarshalBucket(bucket string, payload []byte) error {
	var target any
	switch bucket {
	case BucketLocations:
		target = &s.Locations
	case BucketApprovalRequests:
		target = &s.ApprovalRequests
	case BucketCellCertificates:
		target = &s.CellCertificates
	case BucketLinkedTransactions:
		target = &s.LinkedTransactions
	case BucketLocationHistory:
		target = &s.LocationHistory
	case BucketSignedOperationCapacities:
		target = &s.SignedOperationCapacities
	default:
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode bucket %s: %w", bucket, err)
	}
	return nil
}

func newMemoryState() memoryState {
	return memoryState{
		locations:    make(map[string]domain.Location),
		requests:     make(map[string]domain.ApprovalRequest),
		certificates: make(map[string]domain.CellCertificate),
		transactions: make(map[string]domain.LinkedTransaction),
		history:      make(map[string]domain.LocationHistory),
		signedOpCaps: make(map[string]domain.SignedOperationCapacity),
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		locations:    make(map[string]domain.Location, len(s.locations)),
		requests:     make(map[string]domain.ApprovalRequest, len(s.requests)),
		certificates: make(map[string]domain.CellCertificate, len(s.certificates)),
		transactions: make(map[string]domain.LinkedTransaction, len(s.transactions)),
		history:      make(map[string]domain.LocationHistory, len(s.history)),
		signedOpCaps: make(map[string]domain.SignedOperationCapacity, len(s.signedOpCaps)),
	}
	for k, v := range s.locations {
		out.locations[k] = v.Clone()
	}
	for k, v := range s.requests {
		out.requests[k] = v.Clone()
	}
	for k, v := range s.certificates {
		out.certificates[k] = v.Clone()
	}
	for k, v := range s.transactions {
		out.transactions[k] = v.Clone()
	}
	for k, v := range s.history {
		out.history[k] = v.Clone()
	}
	for k, v := range s.signedOpCaps {
		out.signedOpCaps[k] = v
	}
	return out
}

// shared wraps the state maps without copying them.
func (s memoryState) shared() Snapshot {
	return Snapshot{
		Locations:                 s.locations,
		ApprovalRequests:          s.requests,
		CellCertificates:          s.certificates,
		LinkedTransactions:        s.transactions,
		LocationHistory:           s.history,
		SignedOperationCapacities: s.signedOpCaps,
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return state.clone().shared()
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		locations:    s.Locations,
		requests:     s.ApprovalRequests,
		certificates: s.CellCertificates,
		transactions: s.LinkedTransactions,
		history:      s.LocationHistory,
		signedOpCaps: s.SignedOperationCapacities,
	}
	if state.locations == nil {
		state.locations = make(map[string]domain.Location)
	}
	if state.requests == nil {
		state.requests = make(map[string]domain.ApprovalRequest)
	}
	if state.certificates == nil {
		state.certificates = make(map[string]domain.CellCertificate)
	}
	if state.transactions == nil {
		state.transactions = make(map[string]domain.LinkedTransaction)
	}
	if state.history == nil {
		state.history = make(map[string]domain.LocationHistory)
	}
	if state.signedOpCaps == nil {
		state.signedOpCaps = make(map[string]domain.SignedOperationCapacity)
	}
	return state.clone()
}
