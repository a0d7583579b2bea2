package issuer

import (
	"context"

	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
)

// cardOperations is the subset of the Manager a Card needs. A Card does not
// own the Manager; it only holds this handle.
type cardOperations interface {
	sessionToken() (string, bool)
	service() network.Service
	platform() (version, required int)
	track(ctx context.Context, source string, props map[string]any) *tracker
	bind(ctx context.Context) (context.Context, context.CancelFunc)
	launch(fn func(ctx context.Context))
	deliver(fn func())
}

// Card is an immutable snapshot of a card. Operations never mutate the
// snapshot; fetch the card again to observe a new state.
type Card struct {
	ID             string            `json:"id"`
	State          models.CardState  `json:"state"`
	PanLast4Digits string            `json:"pan_last4_digits"`
	ExpiryDate     models.ExpiryDate `json:"expiry_date"`
	CardholderName string            `json:"cardholder_name,omitempty"`

	ops cardOperations
}

// Equal compares the card data, ignoring the manager handle.
func (c Card) Equal(other Card) bool {
	return c.ID == other.ID &&
		c.State == other.State &&
		c.PanLast4Digits == other.PanLast4Digits &&
		c.ExpiryDate == other.ExpiryDate &&
		c.CardholderName == other.CardholderName
}

// PossibleTransitions lists the states this card may legally move to.
func (c Card) PossibleTransitions() []models.CardState {
	return LegalTargets(c.State)
}

func (c Card) eventProps() map[string]any {
	return map[string]any{
		"card_id":    c.ID,
		"card_state": string(c.State),
	}
}

var errUnboundCard = &ManagementError{Kind: KindConfigurationIssue, Hint: "card was not obtained from a manager"}

// Activate moves the card to ACTIVE.
func (c Card) Activate(ctx context.Context) (OperationResult[Unit], error) {
	return c.changeState(ctx, SourceActivate, models.CardStateActive, models.ReasonNone)
}

// Suspend moves the card to SUSPENDED. reason may be ReasonNone.
func (c Card) Suspend(ctx context.Context, reason models.Reason) (OperationResult[Unit], error) {
	return c.changeState(ctx, SourceSuspend, models.CardStateSuspended, reason)
}

// Revoke moves the card to REVOKED, which is terminal.
func (c Card) Revoke(ctx context.Context, reason models.Reason) (OperationResult[Unit], error) {
	return c.changeState(ctx, SourceRevoke, models.CardStateRevoked, reason)
}

// changeState checks the transition, then the session, then the reason,
// before calling the network. The snapshot is never updated.
func (c Card) changeState(ctx context.Context, source string, target models.CardState, reason models.Reason) (OperationResult[Unit], error) {
	ec := errorContext{cardID: c.ID, current: c.State, requested: target}
	if c.ops == nil {
		return operationFailure[Unit](toOperationError(errUnboundCard, ec)), nil
	}

	t := c.ops.track(ctx, source, c.eventProps())

	if !CanTransition(c.State, target) {
		me := t.reject(&ManagementError{Kind: KindInvalidStateRequested})
		return operationFailure[Unit](toOperationError(me, ec)), nil
	}
	token, ok := c.ops.sessionToken()
	if !ok {
		me := t.reject(&ManagementError{Kind: KindUnauthenticated})
		return operationFailure[Unit](toOperationError(me, ec)), nil
	}
	if !reason.Valid() {
		me := t.reject(&ManagementError{Kind: KindConfigurationIssue, Hint: "unknown reason " + string(reason)})
		return operationFailure[Unit](toOperationError(me, ec)), nil
	}

	svc := c.ops.service()
	_, me, err := invoke(c.ops, ctx, t, func(ctx context.Context) (network.Unit, error) {
		switch target {
		case models.CardStateActive:
			return network.First(ctx, svc.ActivateCard(ctx, token, c.ID))
		case models.CardStateSuspended:
			return network.First(ctx, svc.SuspendCard(ctx, token, reason, c.ID))
		default:
			return network.First(ctx, svc.RevokeCard(ctx, token, reason, c.ID))
		}
	})
	if err != nil {
		return OperationResult[Unit]{}, err
	}
	if me != nil {
		return operationFailure[Unit](toOperationError(me, ec)), nil
	}

	t.success(EventCardStateManagement, map[string]any{
		"original_state":  string(c.State),
		"requested_state": string(target),
		"reason":          string(reason),
	})
	return operationSuccess(Unit{}), nil
}
