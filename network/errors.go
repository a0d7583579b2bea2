package network

import (
	"fmt"

	"github.com/alovak/cardflow-issuing/issuer/models"
)

// ErrorKind classifies raw failures reported by the network.
type ErrorKind int

const (
	ErrorKindUnauthenticated ErrorKind = iota
	ErrorKindAuthenticationFailure
	ErrorKindConnectionFailure
	ErrorKindServerError
	ErrorKindConfiguration
	ErrorKindSecureOperationFailure
	ErrorKindPanNotViewed
	ErrorKindInvalidStateRequested
	ErrorKindUnsupportedAPIVersion
	ErrorKindPushProvisioning
	ErrorKindDigitizationState
	ErrorKindUnknown

	errorKindCount
)

var errorKindNames = [...]string{
	ErrorKindUnauthenticated:        "unauthenticated",
	ErrorKindAuthenticationFailure:  "authentication_failure",
	ErrorKindConnectionFailure:      "connection_failure",
	ErrorKindServerError:            "server_error",
	ErrorKindConfiguration:          "configuration",
	ErrorKindSecureOperationFailure: "secure_operation_failure",
	ErrorKindPanNotViewed:           "pan_not_viewed",
	ErrorKindInvalidStateRequested:  "invalid_state_requested",
	ErrorKindUnsupportedAPIVersion:  "unsupported_api_version",
	ErrorKindPushProvisioning:       "push_provisioning",
	ErrorKindDigitizationState:      "digitization_state",
	ErrorKindUnknown:                "unknown",
}

// AllErrorKinds returns every declared kind in declaration order.
func AllErrorKinds() []ErrorKind {
	kinds := make([]ErrorKind, 0, errorKindCount)
	for k := ErrorKind(0); k < errorKindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k ErrorKind) String() string {
	if k < 0 || k >= errorKindCount {
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
	return errorKindNames[k]
}

// Error is a raw failure reported by the network.
type Error struct {
	Kind    ErrorKind
	Message string

	// Hint is set for ErrorKindConfiguration.
	Hint string
	// Version is set for ErrorKindUnsupportedAPIVersion.
	Version int
	// Provisioning is set for ErrorKindPushProvisioning.
	Provisioning models.ProvisioningFailure
	// Digitization is set for ErrorKindDigitizationState.
	Digitization models.DigitizationFailure

	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		return "network: " + e.Kind.String()
	}
	return fmt.Sprintf("network: %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError is a shorthand for an Error of kind with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
