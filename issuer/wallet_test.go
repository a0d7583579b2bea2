package issuer_test

import (
	"context"
	"testing"

	"github.com/alovak/cardflow-issuing/issuer"
	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCard_DigitizationState(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	card := f.card(t, models.CardStateActive)
	f.net.On("GetCardDigitizationState", mock.Anything, "card-1", "VALID").
		Return(models.DigitizationStatePending, nil).Once()

	res, err := card.DigitizationState(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.DigitizationStatePending, res.Value())

	e := f.sink.Single(t)
	require.Equal(t, issuer.EventCardDigitizationStateFetched, e.Name)
	require.Equal(t, "PENDING", e.Properties["digitization_state"])
}

func TestCard_DigitizationStateFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	card := f.card(t, models.CardStateActive)
	f.net.On("GetCardDigitizationState", mock.Anything, "card-1", "VALID").
		Return(nil, &network.Error{Kind: network.ErrorKindDigitizationState, Digitization: models.DigitizationFailureWalletUnavailable}).Once()

	res, err := card.DigitizationState(context.Background())
	require.NoError(t, err)

	var failed issuer.DigitizationStateFailed
	require.ErrorAs(t, res.Err(), &failed)
	require.Equal(t, models.DigitizationFailureWalletUnavailable, failed.Type)
}

func TestCard_AddToWallet(t *testing.T) {
	req := network.WalletRequest{DisplayName: "Ada Lovelace"}

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		card := f.card(t, models.CardStateActive)
		f.net.On("AddCardToWallet", mock.Anything, "VALID", "card-1", req).Return(nil).Once()

		res, err := card.AddToWallet(context.Background(), req)
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		require.Equal(t, issuer.EventCardAddedToWallet, f.sink.Single(t).Name)
	})

	t.Run("provisioning failure keeps its type", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		card := f.card(t, models.CardStateActive)
		f.net.On("AddCardToWallet", mock.Anything, "VALID", "card-1", req).
			Return(&network.Error{Kind: network.ErrorKindPushProvisioning, Provisioning: models.ProvisioningFailureDeviceUnsafe}).Once()

		res, err := card.AddToWallet(context.Background(), req)
		require.NoError(t, err)

		var failed issuer.ProvisioningFailed
		require.ErrorAs(t, res.Err(), &failed)
		require.Equal(t, models.ProvisioningFailureDeviceUnsafe, failed.Type)
		require.Equal(t, models.ProvisioningFailureDeviceUnsafe, failed.ManagementError().Provisioning)
	})
}
