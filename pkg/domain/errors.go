package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a domain failure for transport mapping.
type ErrorCode string

const (
	CodeNotFound               ErrorCode = "not_found"
	CodeConflict               ErrorCode = "conflict"
	CodeValidation             ErrorCode = "validation"
	CodeIllegalStateTransition ErrorCode = "illegal_state_transition"
	CodeInternal               ErrorCode = "internal"
)

// Reason names the specific business condition behind an Error.
type Reason string

const (
	ReasonLocationNotFound                  Reason = "LocationNotFound"
	ReasonApprovalRequestNotFound           Reason = "ApprovalRequestNotFound"
	ReasonCertificateNotFound               Reason = "CellCertificateNotFound"
	ReasonTransactionNotFound               Reason = "TransactionNotFound"
	ReasonApprovalRequestAlreadyExists      Reason = "ApprovalRequestAlreadyExists"
	ReasonApprovalRequestAtWrongLevel       Reason = "ApprovalRequestAtWrongLevel"
	ReasonApprovalRequestNotInPendingStatus Reason = "ApprovalRequestNotInPendingStatus"
	ReasonLocationAlreadyDeactivated        Reason = "LocationAlreadyDeactivated"
	ReasonLocationNotDeactivated            Reason = "LocationNotDeactivated"
	ReasonLocationDoesNotRequireApproval    Reason = "LocationDoesNotRequireApproval"
	ReasonLocationRequiresApproval          Reason = "LocationRequiresApproval"
	ReasonLocationNotDraft                  Reason = "LocationNotDraft"
	ReasonLocationLocked                    Reason = "LocationLocked"
	ReasonLocationKeyConflict               Reason = "LocationKeyConflict"
	ReasonCurrentCertificateConflict        Reason = "CurrentCertificateConflict"
	ReasonCapacityInvalid                   Reason = "CapacityInvalid"
	ReasonInvalidHierarchy                  Reason = "InvalidHierarchy"
	ReasonInvalidRequest                    Reason = "InvalidRequest"
	ReasonImmutableRecord                   Reason = "ImmutableRecord"
	ReasonLedgerIncomplete                  Reason = "LedgerIncomplete"
	ReasonConcurrentModification            Reason = "ConcurrentModification"
)

// Error is the coded error returned by every domain operation.
type Error struct {
	Code    ErrorCode
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error on Code and Reason, treating empty fields on the
// target as wildcards. This lets the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound                     = &Error{Code: CodeNotFound}
	ErrConflict                     = &Error{Code: CodeConflict}
	ErrValidation                   = &Error{Code: CodeValidation}
	ErrIllegalStateTransition       = &Error{Code: CodeIllegalStateTransition}
	ErrApprovalRequestAlreadyExists = &Error{Code: CodeConflict, Reason: ReasonApprovalRequestAlreadyExists}
	ErrApprovalRequestAtWrongLevel  = &Error{Code: CodeValidation, Reason: ReasonApprovalRequestAtWrongLevel}
	ErrCapacityInvalid              = &Error{Code: CodeValidation, Reason: ReasonCapacityInvalid}
)

// NewError builds a coded error with a formatted message.
func NewError(code ErrorCode, reason Reason, format string, args ...any) *Error {
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and reason to an underlying error.
func WrapError(err error, code ErrorCode, reason Reason, format string, args ...any) *Error {
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(reason Reason, format string, args ...any) *Error {
	return NewError(CodeNotFound, reason, format, args...)
}

func Conflict(reason Reason, format string, args ...any) *Error {
	return NewError(CodeConflict, reason, format, args...)
}

func Validation(reason Reason, format string, args ...any) *Error {
	return NewError(CodeValidation, reason, format, args...)
}

func IllegalState(reason Reason, format string, args ...any) *Error {
	return NewError(CodeIllegalStateTransition, reason, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// HasReason reports whether err carries the given reason.
func HasReason(err error, reason Reason) bool {
	var de *Error
	return errors.As(err, &de) && de.Reason == reason
}
