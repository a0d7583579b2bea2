package issuer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alovak/cardflow-issuing/issuer"
	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token is stored", func(t *testing.T) {
		f := newFixture(t)
		f.net.On("IsTokenValid", mock.Anything, "VALID").Return(true, nil).Once()

		require.True(t, f.manager.Login(ctx, "VALID"))

		token, ok := f.manager.Token()
		require.True(t, ok)
		require.Equal(t, "VALID", token)

		e := f.sink.Single(t)
		require.Equal(t, issuer.EventSessionLogin, e.Name)
		require.Equal(t, issuer.SourceLogin, e.Source)
	})

	t.Run("invalid token keeps the previous session", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.net.On("IsTokenValid", mock.Anything, "INVALID").Return(false, nil).Once()

		require.False(t, f.manager.Login(ctx, "INVALID"))

		token, ok := f.manager.Token()
		require.True(t, ok)
		require.Equal(t, "VALID", token)

		e := f.sink.Single(t)
		require.Equal(t, issuer.EventOperationFailure, e.Name)
		require.Equal(t, "authentication_failure", e.Properties["error_kind"])
	})

	t.Run("invalid token clears the session when configured", func(t *testing.T) {
		f := newFixture(t, func(c *issuer.Config) {
			c.FailedLoginPolicy = issuer.ClearSessionOnFailedLogin
		})
		f.login(t)
		f.net.On("IsTokenValid", mock.Anything, "INVALID").Return(false, nil).Once()

		require.False(t, f.manager.Login(ctx, "INVALID"))

		_, ok := f.manager.Token()
		require.False(t, ok)
	})

	t.Run("empty token never reaches the network", func(t *testing.T) {
		f := newFixture(t)

		require.False(t, f.manager.Login(ctx, ""))
		f.net.AssertNotCalled(t, "IsTokenValid", mock.Anything, mock.Anything)
	})

	t.Run("network failure leaves the session untouched", func(t *testing.T) {
		f := newFixture(t, func(c *issuer.Config) {
			c.FailedLoginPolicy = issuer.ClearSessionOnFailedLogin
		})
		f.login(t)
		f.net.On("IsTokenValid", mock.Anything, "OTHER").
			Return(false, network.NewError(network.ErrorKindConnectionFailure, "offline")).Once()

		require.False(t, f.manager.Login(ctx, "OTHER"))

		token, ok := f.manager.Token()
		require.True(t, ok)
		require.Equal(t, "VALID", token)
		require.Equal(t, "connection_issue", f.sink.Single(t).Properties["error_kind"])
	})
}

func TestLogout_ClearsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.manager.Logout()

	_, ok := f.manager.Token()
	require.False(t, ok)
	require.Equal(t, issuer.EventSessionLogout, f.sink.Single(t).Name)
}

func TestLogout_DuringLoginValidation(t *testing.T) {
	t.Run("network ignores cancellation", func(t *testing.T) {
		f := newFixture(t)
		started, release := make(chan struct{}), make(chan struct{})
		f.net.On("IsTokenValid", mock.Anything, "VALID").
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(true, nil).Once()

		result := make(chan bool)
		go func() { result <- f.manager.Login(context.Background(), "VALID") }()

		<-started
		f.manager.Logout()
		close(release)

		require.False(t, <-result)
		_, ok := f.manager.Token()
		require.False(t, ok)
	})

	t.Run("network honours cancellation", func(t *testing.T) {
		f := newFixture(t)
		started := make(chan struct{})
		f.net.On("IsTokenValid", mock.Anything, "VALID").
			Run(func(args mock.Arguments) {
				close(started)
				<-args.Get(0).(context.Context).Done()
			}).
			Return(false, context.Canceled).Once()

		result := make(chan bool)
		go func() { result <- f.manager.Login(context.Background(), "VALID") }()

		<-started
		f.manager.Logout()

		require.False(t, <-result)
		_, ok := f.manager.Token()
		require.False(t, ok)

		var names []string
		for _, e := range f.sink.Events() {
			names = append(names, e.Name)
		}
		require.ElementsMatch(t, []string{issuer.EventSessionLogout, issuer.EventOperationCancelled}, names)
	})

	t.Run("login after logout still works", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.manager.Logout()
		f.login(t)

		token, ok := f.manager.Token()
		require.True(t, ok)
		require.Equal(t, "VALID", token)
	})
}

func TestGetCards(t *testing.T) {
	ctx := context.Background()
	records := []network.Card{
		{ID: "c1", Status: network.StatusActive, Last4: "1111", ExpiryYYMM: "2901", CardholderName: "Ada"},
		{ID: "c2", Status: network.StatusSuspended, Last4: "2222", ExpiryYYMM: "3006"},
	}

	t.Run("requires a session", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.manager.GetCards(ctx)
		require.NoError(t, err)
		require.False(t, res.Succeeded())
		require.IsType(t, issuer.Unauthenticated{}, res.Err())
		f.net.AssertNotCalled(t, "GetCards", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("converts records", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.net.On("GetCards", mock.Anything, "VALID", []network.Status(nil)).Return(records, nil).Once()

		res, err := f.manager.GetCards(ctx)
		require.NoError(t, err)

		cards, err := res.Get()
		require.NoError(t, err)
		require.Len(t, cards, 2)
		require.Equal(t, "c1", cards[0].ID)
		require.Equal(t, models.CardStateActive, cards[0].State)
		require.Equal(t, "1111", cards[0].PanLast4Digits)
		require.Equal(t, models.ExpiryDate{Month: 1, Year: 2029}, cards[0].ExpiryDate)
		require.Equal(t, models.CardStateSuspended, cards[1].State)

		e := f.sink.Single(t)
		require.Equal(t, issuer.EventCardsFetched, e.Name)
		require.Equal(t, 2, e.Properties["count"])
	})

	t.Run("forwards the state filter without duplicates", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		want := []network.Status{network.StatusSuspended, network.StatusActive}
		f.net.On("GetCards", mock.Anything, "VALID", want).Return(records, nil).Once()

		res, err := f.manager.GetCards(ctx, models.CardStateSuspended, models.CardStateActive, models.CardStateSuspended)
		require.NoError(t, err)
		require.True(t, res.Succeeded())
	})

	t.Run("unknown state is a configuration issue", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		res, err := f.manager.GetCards(ctx, models.CardState("LOST"))
		require.NoError(t, err)
		require.IsType(t, issuer.Misconfigured{}, res.Err())
	})

	t.Run("malformed record is a connection issue", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		bad := []network.Card{{ID: "c3", Status: network.StatusActive, Last4: "12a4", ExpiryYYMM: "3001"}}
		f.net.On("GetCards", mock.Anything, "VALID", []network.Status(nil)).Return(bad, nil).Once()

		res, err := f.manager.GetCards(ctx)
		require.NoError(t, err)
		require.IsType(t, issuer.ConnectionFailed{}, res.Err())
	})

	t.Run("maps network errors", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.net.On("GetCards", mock.Anything, "VALID", []network.Status(nil)).
			Return(nil, network.NewError(network.ErrorKindUnauthenticated, "expired")).Once()

		res, err := f.manager.GetCards(ctx)
		require.NoError(t, err)
		require.IsType(t, issuer.Unauthenticated{}, res.Err())
		require.True(t, errors.Is(res.Err().ManagementError(), issuer.ErrUnauthenticated))
	})
}

func TestGetCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t)
	f.net.On("GetCard", mock.Anything, "c1", "VALID").
		Return(network.Card{ID: "c1", Status: network.StatusInactive, Last4: "9999", ExpiryYYMM: "2812"}, nil).Once()

	res, err := f.manager.GetCard(ctx, "c1")
	require.NoError(t, err)

	card, err := res.Get()
	require.NoError(t, err)
	require.Equal(t, models.CardStateInactive, card.State)
	require.ElementsMatch(t, []models.CardState{models.CardStateActive, models.CardStateRevoked}, card.PossibleTransitions())
}

func TestGetCard_NotFoundIsConnectionIssue(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.net.On("GetCard", mock.Anything, "missing", "VALID").
		Return(nil, network.NewError(network.ErrorKindServerError, "404")).Once()

	res, err := f.manager.GetCard(context.Background(), "missing")
	require.NoError(t, err)
	require.IsType(t, issuer.ConnectionFailed{}, res.Err())
}

func TestCardFromRecord_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.CardFromRecord(network.Card{ID: "c1", Status: "frozen", Last4: "1234", ExpiryYYMM: "3001"})
	require.Error(t, err)
}

func TestConfigurePushProvisioning(t *testing.T) {
	ctx := context.Background()
	cfg := network.PushProvisioningConfig{WalletProvider: "wallet", IssuerID: "issuer-1", Environment: "sandbox"}

	t.Run("does not require a session", func(t *testing.T) {
		f := newFixture(t)
		f.net.On("ConfigurePushProvisioning", mock.Anything, cfg).Return(nil).Once()

		res, err := f.manager.ConfigurePushProvisioning(ctx, cfg)
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		require.Equal(t, issuer.EventPushProvisioningConfigured, f.sink.Single(t).Name)
	})

	t.Run("incomplete config is rejected locally", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.manager.ConfigurePushProvisioning(ctx, network.PushProvisioningConfig{})
		require.NoError(t, err)
		require.IsType(t, issuer.Misconfigured{}, res.Err())
	})
}

func TestHandleWalletResult_Forwards(t *testing.T) {
	f := newFixture(t)
	res := network.WalletResult{RequestCode: 7, ResultCode: 1}
	f.net.On("HandleWalletResult", mock.Anything, res).Return(true).Once()

	require.True(t, f.manager.HandleWalletResult(context.Background(), res))
}
