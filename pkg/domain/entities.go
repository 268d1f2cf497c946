// Package domain defines the residential location entities, the approval and
// certificate records built from them, the change ledger rows, and the rule
// evaluation primitives shared by every persistence backend.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityType identifies the kind of record stored by a persistence backend.
type EntityType string

// Entity identifiers used in Change records and persistence buckets.
const (
	EntityLocation                EntityType = "location"
	EntityApprovalRequest         EntityType = "approval_request"
	EntityCellCertificate         EntityType = "cell_certificate"
	EntityLinkedTransaction       EntityType = "linked_transaction"
	EntityLocationHistory         EntityType = "location_history"
	EntitySignedOperationCapacity EntityType = "signed_operation_capacity"
)

// Base carries the identity and timestamps every record shares.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Action indicates the type of modification performed.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a single mutation applied inside a transaction.
type Change struct {
	Entity   EntityType    `json:"entity"`
	Action   Action        `json:"action"`
	EntityID string        `json:"entity_id"`
	PrisonID string        `json:"prison_id"`
	Before   ChangePayload `json:"before"`
	After    ChangePayload `json:"after"`
}

// Severity indicates how a rule violation affects a transaction.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityLog   Severity = "log"
)

// Violation is a single rule finding.
type Violation struct {
	Rule     string
	Severity Severity
	Code     ErrorCode
	Reason   Reason
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates the violations raised by the rules engine and the
// changes a committed transaction applied.
type Result struct {
	Violations []Violation
	Changes    []Change
}

// Merge appends violations and changes from another result.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
	r.Changes = append(r.Changes, other.Changes...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Blocking returns only the blocking violations.
func (r Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations abort a commit.
// It unwraps to a coded *Error built from the first blocking violation.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	blocking := e.Result.Blocking()
	if len(blocking) == 0 {
		return "transaction blocked by rules"
	}
	msgs := make([]string, 0, len(blocking))
	for _, v := range blocking {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Rule, v.Message))
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}

func (e RuleViolationError) Unwrap() error {
	blocking := e.Result.Blocking()
	if len(blocking) == 0 {
		return nil
	}
	v := blocking[0]
	code := v.Code
	if code == "" {
		code = CodeConflict
	}
	return &Error{Code: code, Reason: v.Reason, Message: v.Message}
}

// Clock supplies the current time. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a UTC wall clock.
func SystemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}

// Actor identifies who performs an operation and when.
type Actor struct {
	Username string
	Clock    Clock
}

// NewActor builds an actor backed by the system clock when clock is nil.
func NewActor(username string, clock Clock) Actor {
	if clock == nil {
		clock = SystemClock()
	}
	return Actor{Username: username, Clock: clock}
}

// Now returns the actor's current time in UTC.
func (a Actor) Now() time.Time {
	if a.Clock == nil {
		return time.Now().UTC()
	}
	return a.Clock.Now().UTC()
}
