package issuer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/stretchr/testify/require"
)

func TestNetworkErrorMappers_CoverEveryKind(t *testing.T) {
	require.Len(t, networkErrorMappers, len(network.AllErrorKinds()))
	for _, kind := range network.AllErrorKinds() {
		require.Contains(t, networkErrorMappers, kind, "no mapper for %s", kind)
	}
}

func TestToManagementError(t *testing.T) {
	tests := []struct {
		raw  error
		want ErrorKind
	}{
		{network.NewError(network.ErrorKindUnauthenticated, "x"), KindUnauthenticated},
		{network.NewError(network.ErrorKindAuthenticationFailure, "x"), KindAuthenticationFailure},
		{network.NewError(network.ErrorKindConnectionFailure, "x"), KindConnectionIssue},
		{network.NewError(network.ErrorKindServerError, "x"), KindConnectionIssue},
		{network.NewError(network.ErrorKindConfiguration, "x"), KindConfigurationIssue},
		{network.NewError(network.ErrorKindSecureOperationFailure, "x"), KindUnableToPerformSecureOperation},
		{network.NewError(network.ErrorKindPanNotViewed, "x"), KindPanNotViewed},
		{network.NewError(network.ErrorKindInvalidStateRequested, "x"), KindInvalidStateRequested},
		{network.NewError(network.ErrorKindUnsupportedAPIVersion, "x"), KindUnsupportedAPIVersion},
		{network.NewError(network.ErrorKindPushProvisioning, "x"), KindPushProvisioningFailure},
		{network.NewError(network.ErrorKindDigitizationState, "x"), KindFetchDigitizationStateFailure},
		{network.NewError(network.ErrorKindUnknown, "x"), KindConnectionIssue},
		{errors.New("socket closed"), KindConnectionIssue},
		{fmt.Errorf("wrapped: %w", network.NewError(network.ErrorKindPanNotViewed, "x")), KindPanNotViewed},
	}

	for _, tt := range tests {
		t.Run(tt.raw.Error(), func(t *testing.T) {
			me := ToManagementError(tt.raw)
			require.Equal(t, tt.want, me.Kind)
			require.ErrorIs(t, me, tt.raw)
		})
	}

	require.Nil(t, ToManagementError(nil))
}

func TestToManagementError_KeepsDetails(t *testing.T) {
	me := ToManagementError(&network.Error{Kind: network.ErrorKindConfiguration, Message: "bad", Hint: "set issuer id"})
	require.Equal(t, "set issuer id", me.Hint)

	me = ToManagementError(&network.Error{Kind: network.ErrorKindConfiguration, Message: "bad"})
	require.Equal(t, "bad", me.Hint)

	me = ToManagementError(&network.Error{Kind: network.ErrorKindUnsupportedAPIVersion, Version: 31})
	require.Equal(t, 31, me.Version)

	me = ToManagementError(&network.Error{Kind: network.ErrorKindPushProvisioning})
	require.Equal(t, models.ProvisioningFailureUnknown, me.Provisioning)

	me = ToManagementError(&network.Error{Kind: network.ErrorKindDigitizationState, Digitization: models.DigitizationFailureCardNotFound})
	require.Equal(t, models.DigitizationFailureCardNotFound, me.Digitization)
}

func TestToManagementError_PassesThroughManagementErrors(t *testing.T) {
	me := &ManagementError{Kind: KindPanNotViewed}
	require.Same(t, me, ToManagementError(fmt.Errorf("ctx: %w", me)))
}

// Every kind converts into one of the sealed families and back to the same kind.
func TestSealedFamiliesRoundTrip(t *testing.T) {
	ec := errorContext{cardID: "c1", current: models.CardStateActive, requested: models.CardStateActive, required: 33}

	for _, kind := range AllErrorKinds() {
		me := &ManagementError{Kind: kind, Hint: "hint", Version: 30}

		op := toOperationError(me, ec)
		require.Equal(t, kind, op.ManagementError().Kind, "operation %s", kind)

		sd := toSecureDataError(me, ec)
		require.Equal(t, kind, sd.ManagementError().Kind, "secure data %s", kind)
	}
}

func TestSealedFamilies_ForeignKindsAreUnexpected(t *testing.T) {
	ec := errorContext{cardID: "c1"}

	require.IsType(t, Unexpected{}, toOperationError(&ManagementError{Kind: KindPanNotViewed}, ec))
	require.IsType(t, Unexpected{}, toOperationError(&ManagementError{Kind: KindUnableToPerformSecureOperation}, ec))
	require.IsType(t, Unexpected{}, toSecureDataError(&ManagementError{Kind: KindInvalidStateRequested}, ec))
	require.IsType(t, Unexpected{}, toSecureDataError(&ManagementError{Kind: KindPushProvisioningFailure}, ec))
	require.IsType(t, Unexpected{}, toSecureDataError(&ManagementError{Kind: KindFetchDigitizationStateFailure}, ec))
}

func TestManagementError_Is(t *testing.T) {
	err := fmt.Errorf("op: %w", (&ManagementError{Kind: KindUnauthenticated}).withCause(errors.New("expired")))
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.NotErrorIs(t, err, ErrAuthenticationFailure)
	require.Equal(t, "unauthenticated", ErrUnauthenticated.Error())
	require.Equal(t, "configuration_issue: missing key", (&ManagementError{Kind: KindConfigurationIssue, Hint: "missing key"}).Error())
}

func TestErrorKindNames(t *testing.T) {
	require.Len(t, errorKindNames, int(errorKindCount))
	for _, k := range AllErrorKinds() {
		require.NotEmpty(t, k.String())
	}
	require.Equal(t, "error_kind(42)", ErrorKind(42).String())
}
