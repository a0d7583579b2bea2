package issuer

import (
	"context"

	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"golang.org/x/exp/slog"
)

// DigitizationState reports whether the card is present in the device wallet.
func (c Card) DigitizationState(ctx context.Context) (OperationResult[models.DigitizationState], error) {
	ec := errorContext{cardID: c.ID}
	if c.ops == nil {
		return operationFailure[models.DigitizationState](toOperationError(errUnboundCard, ec)), nil
	}

	t := c.ops.track(ctx, SourceDigitizationState, c.eventProps())

	token, ok := c.ops.sessionToken()
	if !ok {
		me := t.reject(&ManagementError{Kind: KindUnauthenticated})
		return operationFailure[models.DigitizationState](toOperationError(me, ec)), nil
	}

	svc := c.ops.service()
	state, me, err := invoke(c.ops, ctx, t, func(ctx context.Context) (models.DigitizationState, error) {
		return svc.GetCardDigitizationState(ctx, c.ID, token)
	})
	if err != nil {
		return OperationResult[models.DigitizationState]{}, err
	}
	if me != nil {
		return operationFailure[models.DigitizationState](toOperationError(me, ec)), nil
	}

	t.success(EventCardDigitizationStateFetched, map[string]any{"digitization_state": string(state)})
	return operationSuccess(state), nil
}

// AddToWallet starts push provisioning of the card into the device wallet.
// ConfigurePushProvisioning must have been called first.
func (c Card) AddToWallet(ctx context.Context, req network.WalletRequest) (OperationResult[Unit], error) {
	ec := errorContext{cardID: c.ID}
	if c.ops == nil {
		return operationFailure[Unit](toOperationError(errUnboundCard, ec)), nil
	}

	t := c.ops.track(ctx, SourceAddToWallet, c.eventProps())

	token, ok := c.ops.sessionToken()
	if !ok {
		me := t.reject(&ManagementError{Kind: KindUnauthenticated})
		return operationFailure[Unit](toOperationError(me, ec)), nil
	}

	svc := c.ops.service()
	_, me, err := invoke(c.ops, ctx, t, func(ctx context.Context) (Unit, error) {
		return Unit{}, svc.AddCardToWallet(ctx, token, c.ID, req)
	})
	if err != nil {
		return OperationResult[Unit]{}, err
	}
	if me != nil {
		return operationFailure[Unit](toOperationError(me, ec)), nil
	}

	t.success(EventCardAddedToWallet, nil)
	return operationSuccess(Unit{}), nil
}

// ConfigurePushProvisioning sets up the wallet provider. It does not need a session.
func (m *Manager) ConfigurePushProvisioning(ctx context.Context, cfg network.PushProvisioningConfig) (OperationResult[Unit], error) {
	t := m.track(ctx, SourceConfigurePushProvisioning, map[string]any{
		"wallet_provider": cfg.WalletProvider,
		"environment":     cfg.Environment,
	})

	if cfg.WalletProvider == "" || cfg.IssuerID == "" {
		me := t.reject(&ManagementError{Kind: KindConfigurationIssue, Hint: "wallet provider and issuer id are required"})
		return operationFailure[Unit](toOperationError(me, errorContext{})), nil
	}

	_, me, err := invoke(m, ctx, t, func(ctx context.Context) (Unit, error) {
		return Unit{}, m.network.ConfigurePushProvisioning(ctx, cfg)
	})
	if err != nil {
		return OperationResult[Unit]{}, err
	}
	if me != nil {
		return operationFailure[Unit](toOperationError(me, errorContext{})), nil
	}

	t.success(EventPushProvisioningConfigured, nil)
	return operationSuccess(Unit{}), nil
}

// HandleWalletResult forwards a wallet activity result. It reports whether
// the result belonged to a provisioning flow.
func (m *Manager) HandleWalletResult(ctx context.Context, res network.WalletResult) bool {
	handled := m.network.HandleWalletResult(ctx, res)
	m.logger.Debug("wallet result",
		slog.Int("request_code", res.RequestCode),
		slog.Int("result_code", res.ResultCode),
		slog.Bool("handled", handled),
	)
	return handled
}
