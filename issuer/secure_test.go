package issuer_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/alovak/cardflow-issuing/issuer"
	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCard_DisplayPan(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	card := f.card(t, models.CardStateActive)
	cfg := network.ViewConfig{Theme: "dark", Grouping: true}
	f.net.On("DisplayPan", mock.Anything, "card-1", "SUT", cfg).Return(textView{kind: network.DataKindPan}, nil).Once()

	res, err := card.DisplayPan(context.Background(), "SUT", cfg)
	require.NoError(t, err)

	view, err := res.Get()
	require.NoError(t, err)
	require.Equal(t, network.DataKindPan, view.Kind())

	var buf bytes.Buffer
	require.NoError(t, view.Render(&buf))
	require.Equal(t, "****", buf.String())

	require.Equal(t, issuer.EventCardPanDisplayed, f.sink.Single(t).Name)
}

func TestCard_DisplayPanAndSecurityCode(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	card := f.card(t, models.CardStateActive)
	pair := network.ViewPair{
		Pan:          textView{kind: network.DataKindPan},
		SecurityCode: textView{kind: network.DataKindSecurityCode},
	}
	f.net.On("DisplayPanAndSecurityCode", mock.Anything, "card-1", "SUT", network.ViewConfig{}).Return(pair, nil).Once()

	res, err := card.DisplayPanAndSecurityCode(context.Background(), "SUT", network.ViewConfig{})
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, network.DataKindSecurityCode, res.Value().SecurityCode.Kind())
}

func TestCard_SecureOperationsRequireSession(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, models.CardStateActive)

	res, err := card.DisplayPin(context.Background(), "SUT", network.ViewConfig{})
	require.NoError(t, err)
	require.IsType(t, issuer.Unauthenticated{}, res.Err())
	require.Len(t, f.net.Calls, 0)
}

func TestCard_SecureOperationRequiresSingleUseToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	card := f.card(t, models.CardStateActive)

	res, err := card.DisplaySecurityCode(context.Background(), "", network.ViewConfig{})
	require.NoError(t, err)
	require.IsType(t, issuer.AuthenticationFailed{}, res.Err())
	require.Len(t, f.net.Calls, 1) // login only
}

func TestCard_SecureErrorsAreMapped(t *testing.T) {
	tests := []struct {
		kind network.ErrorKind
		want issuer.SecureDataError
	}{
		{network.ErrorKindSecureOperationFailure, issuer.SecureOperationFailed{}},
		{network.ErrorKindAuthenticationFailure, issuer.AuthenticationFailed{}},
		{network.ErrorKindConnectionFailure, issuer.ConnectionFailed{}},
		{network.ErrorKindInvalidStateRequested, issuer.Unexpected{}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f := newFixture(t)
			f.login(t)
			card := f.card(t, models.CardStateActive)
			f.net.On("DisplayPin", mock.Anything, "card-1", "SUT", network.ViewConfig{}).
				Return(nil, network.NewError(tt.kind, "boom")).Once()

			res, err := card.DisplayPin(context.Background(), "SUT", network.ViewConfig{})
			require.NoError(t, err)
			require.IsType(t, tt.want, res.Err())
		})
	}
}

func TestCard_CopyPan(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported platform version is checked first", func(t *testing.T) {
		f := newFixture(t, func(c *issuer.Config) {
			c.PlatformAPIVersion = 30
			c.MinCopyPanAPIVersion = 33
		})
		card := f.card(t, models.CardStateActive)

		res, err := card.CopyPan(ctx, "SUT")
		require.NoError(t, err)
		require.Equal(t, issuer.UnsupportedAPIVersion{Version: 30, Required: 33}, res.Err())

		me := res.Err().ManagementError()
		require.Equal(t, issuer.KindUnsupportedAPIVersion, me.Kind)
		require.Equal(t, 30, me.Version)
	})

	t.Run("pan must be displayed first", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		card := f.card(t, models.CardStateActive)
		f.net.On("CopyPan", mock.Anything, "card-1", "SUT").
			Return(nil, network.NewError(network.ErrorKindPanNotViewed, "display pan first")).Once()

		res, err := card.CopyPan(ctx, "SUT")
		require.NoError(t, err)
		require.Equal(t, issuer.PanNotViewed{CardID: "card-1"}, res.Err())
	})

	t.Run("copies after display", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		card := f.card(t, models.CardStateActive)
		f.net.On("CopyPan", mock.Anything, "card-1", "SUT").Return(network.Unit{}, nil).Once()

		res, err := card.CopyPan(ctx, "SUT")
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		require.Equal(t, issuer.EventCardPanCopied, f.sink.Single(t).Name)
	})
}
