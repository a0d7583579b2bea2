package issuer

import (
	"fmt"

	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
)

// Unit is the success value of operations that return nothing. It is the
// network's own unit so collaborator streams pass through unconverted.
type Unit = network.Unit

// OperationError is the sealed set of failures returned by card lifecycle,
// listing and provisioning operations. Every variant converts back to a
// ManagementError for the callback API.
type OperationError interface {
	error
	ManagementError() *ManagementError
	operationError()
}

// SecureDataError is the sealed set of failures returned by secure data operations.
type SecureDataError interface {
	error
	ManagementError() *ManagementError
	secureDataError()
}

// Unauthenticated reports a call made without a session token.
type Unauthenticated struct{}

// AuthenticationFailed reports a rejected session or single-use token.
type AuthenticationFailed struct{ Cause error }

// ConnectionFailed reports a transport or server failure.
type ConnectionFailed struct{ Cause error }

// Misconfigured reports a configuration problem with a human-readable hint.
type Misconfigured struct {
	Hint  string
	Cause error
}

// InvalidStateTransition reports a lifecycle change the state machine forbids.
type InvalidStateTransition struct {
	CardID    string
	Current   models.CardState
	Requested models.CardState
}

// UnsupportedAPIVersion reports a platform that lacks a required capability.
type UnsupportedAPIVersion struct {
	Version  int
	Required int
}

type ProvisioningFailed struct {
	Type  models.ProvisioningFailure
	Cause error
}

type DigitizationStateFailed struct {
	Type  models.DigitizationFailure
	Cause error
}

// SecureOperationFailed reports that the network could not render secure data.
type SecureOperationFailed struct{ Cause error }

// PanNotViewed reports a copy attempt before the PAN was displayed in this session.
type PanNotViewed struct{ CardID string }

// Unexpected carries a management error that has no dedicated variant in
// the operation family that received it.
type Unexpected struct{ Err *ManagementError }

func (Unauthenticated) Error() string { return "not logged in" }
func (e AuthenticationFailed) Error() string {
	return causeMessage("authentication failed", e.Cause)
}
func (e ConnectionFailed) Error() string { return causeMessage("connection issue", e.Cause) }
func (e Misconfigured) Error() string   { return "misconfigured: " + e.Hint }
func (e InvalidStateTransition) Error() string {
	return fmt.Sprintf("card %s: invalid transition %s -> %s", e.CardID, e.Current, e.Requested)
}
func (e UnsupportedAPIVersion) Error() string {
	return fmt.Sprintf("platform API version %d unsupported, %d required", e.Version, e.Required)
}
func (e ProvisioningFailed) Error() string { return "push provisioning failed: " + string(e.Type) }
func (e DigitizationStateFailed) Error() string {
	return "fetching digitization state failed: " + string(e.Type)
}
func (e SecureOperationFailed) Error() string {
	return causeMessage("unable to perform secure operation", e.Cause)
}
func (e PanNotViewed) Error() string { return "card " + e.CardID + ": PAN has not been viewed" }
func (e Unexpected) Error() string   { return "unexpected: " + e.Err.Error() }

func causeMessage(msg string, cause error) string {
	if cause == nil {
		return msg
	}
	return msg + ": " + cause.Error()
}

func (Unauthenticated) ManagementError() *ManagementError {
	return &ManagementError{Kind: KindUnauthenticated}
}
func (e AuthenticationFailed) ManagementError() *ManagementError {
	return (&ManagementError{Kind: KindAuthenticationFailure}).withCause(e.Cause)
}
func (e ConnectionFailed) ManagementError() *ManagementError {
	return (&ManagementError{Kind: KindConnectionIssue}).withCause(e.Cause)
}
func (e Misconfigured) ManagementError() *ManagementError {
	return (&ManagementError{Kind: KindConfigurationIssue, Hint: e.Hint}).withCause(e.Cause)
}
func (e InvalidStateTransition) ManagementError() *ManagementError {
	return &ManagementError{Kind: KindInvalidStateRequested}
}
func (e UnsupportedAPIVersion) ManagementError() *ManagementError {
	return &ManagementError{Kind: KindUnsupportedAPIVersion, Version: e.Version}
}
func (e ProvisioningFailed) ManagementError() *ManagementError {
	return (&ManagementError{Kind: KindPushProvisioningFailure, Provisioning: e.Type}).withCause(e.Cause)
}
func (e DigitizationStateFailed) ManagementError() *ManagementError {
	return (&ManagementError{Kind: KindFetchDigitizationStateFailure, Digitization: e.Type}).withCause(e.Cause)
}
func (e SecureOperationFailed) ManagementError() *ManagementError {
	return (&ManagementError{Kind: KindUnableToPerformSecureOperation}).withCause(e.Cause)
}
func (e PanNotViewed) ManagementError() *ManagementError {
	return &ManagementError{Kind: KindPanNotViewed}
}
func (e Unexpected) ManagementError() *ManagementError { return e.Err }

func (Unauthenticated) operationError()         {}
func (AuthenticationFailed) operationError()    {}
func (ConnectionFailed) operationError()        {}
func (Misconfigured) operationError()           {}
func (InvalidStateTransition) operationError()  {}
func (UnsupportedAPIVersion) operationError()   {}
func (ProvisioningFailed) operationError()      {}
func (DigitizationStateFailed) operationError() {}
func (Unexpected) operationError()              {}

func (Unauthenticated) secureDataError()       {}
func (AuthenticationFailed) secureDataError()  {}
func (ConnectionFailed) secureDataError()      {}
func (Misconfigured) secureDataError()         {}
func (UnsupportedAPIVersion) secureDataError() {}
func (SecureOperationFailed) secureDataError() {}
func (PanNotViewed) secureDataError()          {}
func (Unexpected) secureDataError()            {}

// errorContext carries what an operation knows beyond the management error.
type errorContext struct {
	cardID    string
	current   models.CardState
	requested models.CardState
	required  int
}

func toOperationError(me *ManagementError, ec errorContext) OperationError {
	switch me.Kind {
	case KindUnauthenticated:
		return Unauthenticated{}
	case KindAuthenticationFailure:
		return AuthenticationFailed{Cause: me.cause}
	case KindConnectionIssue:
		return ConnectionFailed{Cause: me.cause}
	case KindConfigurationIssue:
		return Misconfigured{Hint: me.Hint, Cause: me.cause}
	case KindInvalidStateRequested:
		return InvalidStateTransition{CardID: ec.cardID, Current: ec.current, Requested: ec.requested}
	case KindUnsupportedAPIVersion:
		return UnsupportedAPIVersion{Version: me.Version, Required: ec.required}
	case KindPushProvisioningFailure:
		return ProvisioningFailed{Type: me.Provisioning, Cause: me.cause}
	case KindFetchDigitizationStateFailure:
		return DigitizationStateFailed{Type: me.Digitization, Cause: me.cause}
	case KindUnableToPerformSecureOperation, KindPanNotViewed:
		return Unexpected{Err: me}
	}
	return Unexpected{Err: me}
}

func toSecureDataError(me *ManagementError, ec errorContext) SecureDataError {
	switch me.Kind {
	case KindUnauthenticated:
		return Unauthenticated{}
	case KindAuthenticationFailure:
		return AuthenticationFailed{Cause: me.cause}
	case KindConnectionIssue:
		return ConnectionFailed{Cause: me.cause}
	case KindConfigurationIssue:
		return Misconfigured{Hint: me.Hint, Cause: me.cause}
	case KindUnableToPerformSecureOperation:
		return SecureOperationFailed{Cause: me.cause}
	case KindPanNotViewed:
		return PanNotViewed{CardID: ec.cardID}
	case KindUnsupportedAPIVersion:
		return UnsupportedAPIVersion{Version: me.Version, Required: ec.required}
	case KindInvalidStateRequested, KindPushProvisioningFailure, KindFetchDigitizationStateFailure:
		return Unexpected{Err: me}
	}
	return Unexpected{Err: me}
}

// OperationResult is the outcome of a card, listing or provisioning operation.
type OperationResult[T any] struct {
	value T
	err   OperationError
}

func operationSuccess[T any](v T) OperationResult[T] {
	return OperationResult[T]{value: v}
}

func operationFailure[T any](err OperationError) OperationResult[T] {
	return OperationResult[T]{err: err}
}

func (r OperationResult[T]) Succeeded() bool { return r.err == nil }

// Value is the success value; it is the zero value on failure.
func (r OperationResult[T]) Value() T { return r.value }

// Err is the failure variant, nil on success.
func (r OperationResult[T]) Err() OperationError { return r.err }

// Get returns the value and the failure as a plain error.
func (r OperationResult[T]) Get() (T, error) {
	if r.err != nil {
		return r.value, r.err
	}
	return r.value, nil
}

func (r OperationResult[T]) managementError() *ManagementError {
	if r.err == nil {
		return nil
	}
	return r.err.ManagementError()
}

// SecureDataResult is the outcome of a secure data operation.
type SecureDataResult[T any] struct {
	value T
	err   SecureDataError
}

func secureDataSuccess[T any](v T) SecureDataResult[T] {
	return SecureDataResult[T]{value: v}
}

func secureDataFailure[T any](err SecureDataError) SecureDataResult[T] {
	return SecureDataResult[T]{err: err}
}

func (r SecureDataResult[T]) Succeeded() bool { return r.err == nil }

func (r SecureDataResult[T]) Value() T { return r.value }

func (r SecureDataResult[T]) Err() SecureDataError { return r.err }

func (r SecureDataResult[T]) Get() (T, error) {
	if r.err != nil {
		return r.value, r.err
	}
	return r.value, nil
}

func (r SecureDataResult[T]) managementError() *ManagementError {
	if r.err == nil {
		return nil
	}
	return r.err.ManagementError()
}
