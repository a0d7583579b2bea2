package issuer

import (
	"context"
	"errors"
	"fmt"

	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
)

// ErrorKind enumerates the public management error conditions.
type ErrorKind int

const (
	KindUnauthenticated ErrorKind = iota
	KindAuthenticationFailure
	KindConnectionIssue
	KindConfigurationIssue
	KindUnableToPerformSecureOperation
	KindPanNotViewed
	KindInvalidStateRequested
	KindUnsupportedAPIVersion
	KindPushProvisioningFailure
	KindFetchDigitizationStateFailure

	errorKindCount
)

var errorKindNames = [...]string{
	KindUnauthenticated:                "unauthenticated",
	KindAuthenticationFailure:          "authentication_failure",
	KindConnectionIssue:                "connection_issue",
	KindConfigurationIssue:             "configuration_issue",
	KindUnableToPerformSecureOperation: "unable_to_perform_secure_operation",
	KindPanNotViewed:                   "pan_not_viewed",
	KindInvalidStateRequested:          "invalid_state_requested",
	KindUnsupportedAPIVersion:          "unsupported_api_version",
	KindPushProvisioningFailure:        "push_provisioning_failure",
	KindFetchDigitizationStateFailure:  "fetch_digitization_state_failure",
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

// ManagementError is the stable error surface of the callback API.
// Two ManagementErrors match under errors.Is when their kinds are equal.
type ManagementError struct {
	Kind ErrorKind

	// Hint explains a configuration issue.
	Hint string
	// Version is the rejected platform API version.
	Version int
	// Provisioning qualifies KindPushProvisioningFailure.
	Provisioning models.ProvisioningFailure
	// Digitization qualifies KindFetchDigitizationStateFailure.
	Digitization models.DigitizationFailure

	cause error
}

var (
	ErrUnauthenticated                = &ManagementError{Kind: KindUnauthenticated}
	ErrAuthenticationFailure          = &ManagementError{Kind: KindAuthenticationFailure}
	ErrConnectionIssue                = &ManagementError{Kind: KindConnectionIssue}
	ErrConfigurationIssue             = &ManagementError{Kind: KindConfigurationIssue}
	ErrUnableToPerformSecureOperation = &ManagementError{Kind: KindUnableToPerformSecureOperation}
	ErrPanNotViewed                   = &ManagementError{Kind: KindPanNotViewed}
	ErrInvalidStateRequested          = &ManagementError{Kind: KindInvalidStateRequested}
	ErrUnsupportedAPIVersion          = &ManagementError{Kind: KindUnsupportedAPIVersion}
	ErrPushProvisioningFailure        = &ManagementError{Kind: KindPushProvisioningFailure}
	ErrFetchDigitizationStateFailure  = &ManagementError{Kind: KindFetchDigitizationStateFailure}
)

// ErrCancelled is returned instead of a result when the manager scope or the
// caller context was cancelled before the network answered.
var ErrCancelled = errors.New("operation cancelled")

func (e *ManagementError) Error() string {
	switch e.Kind {
	case KindConfigurationIssue:
		return fmt.Sprintf("%s: %s", e.Kind, e.Hint)
	case KindUnsupportedAPIVersion:
		return fmt.Sprintf("%s: %d", e.Kind, e.Version)
	case KindPushProvisioningFailure:
		return fmt.Sprintf("%s: %s", e.Kind, e.Provisioning)
	case KindFetchDigitizationStateFailure:
		return fmt.Sprintf("%s: %s", e.Kind, e.Digitization)
	}
	return e.Kind.String()
}

func (e *ManagementError) Unwrap() error { return e.cause }

func (e *ManagementError) Is(target error) bool {
	t, ok := target.(*ManagementError)
	return ok && t.Kind == e.Kind
}

// Cause returns the raw error the management error was derived from, if any.
func (e *ManagementError) Cause() error { return e.cause }

func (e *ManagementError) withCause(err error) *ManagementError {
	e.cause = err
	return e
}

// networkErrorMappers converts each raw network kind. It must hold an entry
// for every network.ErrorKind.
var networkErrorMappers = map[network.ErrorKind]func(*network.Error) *ManagementError{
	network.ErrorKindUnauthenticated: func(*network.Error) *ManagementError {
		return &ManagementError{Kind: KindUnauthenticated}
	},
	network.ErrorKindAuthenticationFailure: func(*network.Error) *ManagementError {
		return &ManagementError{Kind: KindAuthenticationFailure}
	},
	network.ErrorKindConnectionFailure: func(*network.Error) *ManagementError {
		return &ManagementError{Kind: KindConnectionIssue}
	},
	network.ErrorKindServerError: func(*network.Error) *ManagementError {
		return &ManagementError{Kind: KindConnectionIssue}
	},
	network.ErrorKindConfiguration: func(e *network.Error) *ManagementError {
		hint := e.Hint
		if hint == "" {
			hint = e.Message
		}
		return &ManagementError{Kind: KindConfigurationIssue, Hint: hint}
	},
	network.ErrorKindSecureOperationFailure: func(*network.Error) *ManagementError {
		return &ManagementError{Kind: KindUnableToPerformSecureOperation}
	},
	network.ErrorKindPanNotViewed: func(*network.Error) *ManagementError {
		return &ManagementError{Kind: KindPanNotViewed}
	},
	network.ErrorKindInvalidStateRequested: func(*network.Error) *ManagementError {
		return &ManagementError{Kind: KindInvalidStateRequested}
	},
	network.ErrorKindUnsupportedAPIVersion: func(e *network.Error) *ManagementError {
		return &ManagementError{Kind: KindUnsupportedAPIVersion, Version: e.Version}
	},
	network.ErrorKindPushProvisioning: func(e *network.Error) *ManagementError {
		failure := e.Provisioning
		if failure == "" {
			failure = models.ProvisioningFailureUnknown
		}
		return &ManagementError{Kind: KindPushProvisioningFailure, Provisioning: failure}
	},
	network.ErrorKindDigitizationState: func(e *network.Error) *ManagementError {
		failure := e.Digitization
		if failure == "" {
			failure = models.DigitizationFailureUnknown
		}
		return &ManagementError{Kind: KindFetchDigitizationStateFailure, Digitization: failure}
	},
	network.ErrorKindUnknown: func(*network.Error) *ManagementError {
		return &ManagementError{Kind: KindConnectionIssue}
	},
}

// ToManagementError maps a raw error from the network into the public
// taxonomy. Errors that are not network errors, and unmapped kinds, become
// ConnectionIssue. The raw error stays reachable through errors.Unwrap.
func ToManagementError(err error) *ManagementError {
	if err == nil {
		return nil
	}
	var merr *ManagementError
	if errors.As(err, &merr) {
		return merr
	}
	var nerr *network.Error
	if errors.As(err, &nerr) {
		if mapper, ok := networkErrorMappers[nerr.Kind]; ok {
			return mapper(nerr).withCause(err)
		}
	}
	return (&ManagementError{Kind: KindConnectionIssue}).withCause(err)
}

// isCancellation reports whether err is the result of ctx ending rather than
// a terminal answer from the network.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
