package issuer

import (
	"context"

	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
)

// LegacyResult is what the callback API delivers: a value or a
// ManagementError, never both.
type LegacyResult[T any] struct {
	Value T
	Err   *ManagementError
}

func (r LegacyResult[T]) OK() bool { return r.Err == nil }

// Callback receives exactly one LegacyResult, unless the operation was
// cancelled by Logout, in which case it is never called.
type Callback[T any] func(LegacyResult[T])

// runLegacy launches op on the manager scope with the legacy marker set and
// delivers its outcome through the manager dispatcher.
func runLegacy[T any](ops cardOperations, cb Callback[T], op func(ctx context.Context) (T, *ManagementError, error)) {
	if ops == nil {
		cb(LegacyResult[T]{Err: errUnboundCard})
		return
	}
	ops.launch(func(ctx context.Context) {
		v, me, err := op(withLegacyRequest(ctx))
		if err != nil {
			return
		}
		ops.deliver(func() {
			if me != nil {
				cb(LegacyResult[T]{Err: me})
				return
			}
			cb(LegacyResult[T]{Value: v})
		})
	})
}

func legacyOperation[T any](ops cardOperations, cb Callback[T], op func(ctx context.Context) (OperationResult[T], error)) {
	runLegacy(ops, cb, func(ctx context.Context) (T, *ManagementError, error) {
		res, err := op(ctx)
		return res.Value(), res.managementError(), err
	})
}

func legacySecure[T any](ops cardOperations, cb Callback[T], op func(ctx context.Context) (SecureDataResult[T], error)) {
	runLegacy(ops, cb, func(ctx context.Context) (T, *ManagementError, error) {
		res, err := op(ctx)
		return res.Value(), res.managementError(), err
	})
}

// LoginWithCallback is the callback form of Login.
//
// Deprecated: use Login.
func (m *Manager) LoginWithCallback(token string, cb Callback[bool]) {
	runLegacy[bool](m, cb, func(ctx context.Context) (bool, *ManagementError, error) {
		ok, err := m.login(ctx, token)
		return ok, nil, err
	})
}

// Deprecated: use GetCards.
func (m *Manager) GetCardsWithCallback(cb Callback[[]Card], states ...models.CardState) {
	legacyOperation[[]Card](m, cb, func(ctx context.Context) (OperationResult[[]Card], error) {
		return m.GetCards(ctx, states...)
	})
}

// Deprecated: use GetCard.
func (m *Manager) GetCardWithCallback(cardID string, cb Callback[Card]) {
	legacyOperation[Card](m, cb, func(ctx context.Context) (OperationResult[Card], error) {
		return m.GetCard(ctx, cardID)
	})
}

// Deprecated: use ConfigurePushProvisioning.
func (m *Manager) ConfigurePushProvisioningWithCallback(cfg network.PushProvisioningConfig, cb Callback[Unit]) {
	legacyOperation[Unit](m, cb, func(ctx context.Context) (OperationResult[Unit], error) {
		return m.ConfigurePushProvisioning(ctx, cfg)
	})
}

// Deprecated: use Activate.
func (c Card) ActivateWithCallback(cb Callback[Unit]) {
	legacyOperation[Unit](c.ops, cb, c.Activate)
}

// Deprecated: use Suspend.
func (c Card) SuspendWithCallback(reason models.Reason, cb Callback[Unit]) {
	legacyOperation[Unit](c.ops, cb, func(ctx context.Context) (OperationResult[Unit], error) {
		return c.Suspend(ctx, reason)
	})
}

// Deprecated: use Revoke.
func (c Card) RevokeWithCallback(reason models.Reason, cb Callback[Unit]) {
	legacyOperation[Unit](c.ops, cb, func(ctx context.Context) (OperationResult[Unit], error) {
		return c.Revoke(ctx, reason)
	})
}

// Deprecated: use DisplayPin.
func (c Card) DisplayPinWithCallback(singleUseToken string, cfg network.ViewConfig, cb Callback[network.View]) {
	legacySecure[network.View](c.ops, cb, func(ctx context.Context) (SecureDataResult[network.View], error) {
		return c.DisplayPin(ctx, singleUseToken, cfg)
	})
}

// Deprecated: use DisplayPan.
func (c Card) DisplayPanWithCallback(singleUseToken string, cfg network.ViewConfig, cb Callback[network.View]) {
	legacySecure[network.View](c.ops, cb, func(ctx context.Context) (SecureDataResult[network.View], error) {
		return c.DisplayPan(ctx, singleUseToken, cfg)
	})
}

// Deprecated: use DisplaySecurityCode.
func (c Card) DisplaySecurityCodeWithCallback(singleUseToken string, cfg network.ViewConfig, cb Callback[network.View]) {
	legacySecure[network.View](c.ops, cb, func(ctx context.Context) (SecureDataResult[network.View], error) {
		return c.DisplaySecurityCode(ctx, singleUseToken, cfg)
	})
}

// Deprecated: use DisplayPanAndSecurityCode.
func (c Card) DisplayPanAndSecurityCodeWithCallback(singleUseToken string, cfg network.ViewConfig, cb Callback[network.ViewPair]) {
	legacySecure[network.ViewPair](c.ops, cb, func(ctx context.Context) (SecureDataResult[network.ViewPair], error) {
		return c.DisplayPanAndSecurityCode(ctx, singleUseToken, cfg)
	})
}

// Deprecated: use CopyPan.
func (c Card) CopyPanWithCallback(singleUseToken string, cb Callback[Unit]) {
	legacySecure[Unit](c.ops, cb, func(ctx context.Context) (SecureDataResult[Unit], error) {
		return c.CopyPan(ctx, singleUseToken)
	})
}

// Deprecated: use DigitizationState.
func (c Card) DigitizationStateWithCallback(cb Callback[models.DigitizationState]) {
	legacyOperation[models.DigitizationState](c.ops, cb, c.DigitizationState)
}

// Deprecated: use AddToWallet.
func (c Card) AddToWalletWithCallback(req network.WalletRequest, cb Callback[Unit]) {
	legacyOperation[Unit](c.ops, cb, func(ctx context.Context) (OperationResult[Unit], error) {
		return c.AddToWallet(ctx, req)
	})
}
