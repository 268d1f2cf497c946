package domain

import "context"

// Transaction exposes the mutations a persistence backend applies atomically.
// Every method records a Change so rules and audit sinks see the full set.
type Transaction interface {
	Snapshot() TransactionView

	CreateLocation(Location) (Location, error)
	UpdateLocation(id string, mutator func(*Location) error) (Location, error)
	DeleteLocation(id string) error

	CreateApprovalRequest(ApprovalRequest) (ApprovalRequest, error)
	UpdateApprovalRequest(id string, mutator func(*ApprovalRequest) error) (ApprovalRequest, error)

	CreateCellCertificate(CellCertificate) (CellCertificate, error)
	UpdateCellCertificate(id string, mutator func(*CellCertificate) error) (CellCertificate, error)

	CreateLinkedTransaction(LinkedTransaction) (LinkedTransaction, error)
	UpdateLinkedTransaction(id string, mutator func(*LinkedTransaction) error) (LinkedTransaction, error)
	CreateLocationHistory(LocationHistory) (LocationHistory, error)

	PutSignedOperationCapacity(SignedOperationCapacity) (SignedOperationCapacity, error)
}

// TransactionView is a read-only view of store state. List methods treat an
// empty prison id as "all prisons".
type TransactionView interface {
	ListLocations(prisonID string) []Location
	FindLocation(id string) (Location, bool)
	FindLocationByKey(key string) (Location, bool)

	ListApprovalRequests(prisonID string) []ApprovalRequest
	FindApprovalRequest(id string) (ApprovalRequest, bool)

	ListCellCertificates(prisonID string) []CellCertificate
	FindCellCertificate(id string) (CellCertificate, bool)
	CurrentCellCertificate(prisonID string) (CellCertificate, bool)

	ListLinkedTransactions(prisonID string) []LinkedTransaction
	FindLinkedTransaction(id string) (LinkedTransaction, bool)
	ListLocationHistory(locationID string) []LocationHistory
	ListTransactionHistory(transactionID string) []LocationHistory

	FindSignedOperationCapacity(prisonID string) (SignedOperationCapacity, bool)
}

// PersistentStore runs serializable transactions over the domain state.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error)
	View(ctx context.Context, fn func(view TransactionView) error) error
}
