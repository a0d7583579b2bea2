package issuer

import (
	"context"

	"github.com/alovak/cardflow-issuing/network"
)

// DisplayPin renders the PIN. singleUseToken must be freshly issued by the
// cardholder's backend.
func (c Card) DisplayPin(ctx context.Context, singleUseToken string, cfg network.ViewConfig) (SecureDataResult[network.View], error) {
	return secureCall(ctx, c, SourceDisplayPin, EventCardPinDisplayed, singleUseToken, nil,
		func(ctx context.Context, svc network.Service) network.Stream[network.View] {
			return svc.DisplayPin(ctx, c.ID, singleUseToken, cfg)
		})
}

// DisplayPan renders the full card number. A successful display enables CopyPan.
func (c Card) DisplayPan(ctx context.Context, singleUseToken string, cfg network.ViewConfig) (SecureDataResult[network.View], error) {
	return secureCall(ctx, c, SourceDisplayPan, EventCardPanDisplayed, singleUseToken, nil,
		func(ctx context.Context, svc network.Service) network.Stream[network.View] {
			return svc.DisplayPan(ctx, c.ID, singleUseToken, cfg)
		})
}

// DisplaySecurityCode renders the current card security code.
func (c Card) DisplaySecurityCode(ctx context.Context, singleUseToken string, cfg network.ViewConfig) (SecureDataResult[network.View], error) {
	return secureCall(ctx, c, SourceDisplaySecurityCode, EventCardSecurityCodeDisplayed, singleUseToken, nil,
		func(ctx context.Context, svc network.Service) network.Stream[network.View] {
			return svc.DisplaySecurityCode(ctx, c.ID, singleUseToken, cfg)
		})
}

// DisplayPanAndSecurityCode renders both values with one single-use token.
func (c Card) DisplayPanAndSecurityCode(ctx context.Context, singleUseToken string, cfg network.ViewConfig) (SecureDataResult[network.ViewPair], error) {
	return secureCall(ctx, c, SourceDisplayPanAndSecurityCode, EventCardPanAndSecurityCodeDisplayed, singleUseToken, nil,
		func(ctx context.Context, svc network.Service) network.Stream[network.ViewPair] {
			return svc.DisplayPanAndSecurityCode(ctx, c.ID, singleUseToken, cfg)
		})
}

// CopyPan copies the PAN to the clipboard. It requires a platform API version
// that supports clipboard access and a PAN displayed earlier in the session.
func (c Card) CopyPan(ctx context.Context, singleUseToken string) (SecureDataResult[Unit], error) {
	check := func(ops cardOperations, ec *errorContext) *ManagementError {
		version, required := ops.platform()
		if version < required {
			ec.required = required
			return &ManagementError{Kind: KindUnsupportedAPIVersion, Version: version}
		}
		return nil
	}
	return secureCall(ctx, c, SourceCopyPan, EventCardPanCopied, singleUseToken, check,
		func(ctx context.Context, svc network.Service) network.Stream[Unit] {
			return svc.CopyPan(ctx, c.ID, singleUseToken)
		})
}

// secureCall runs a secure data operation. check runs before the session
// test; a missing single-use token fails as an authentication failure
// without reaching the network.
func secureCall[T any](
	ctx context.Context,
	c Card,
	source, event, singleUseToken string,
	check func(ops cardOperations, ec *errorContext) *ManagementError,
	call func(ctx context.Context, svc network.Service) network.Stream[T],
) (SecureDataResult[T], error) {
	ec := errorContext{cardID: c.ID}
	if c.ops == nil {
		return secureDataFailure[T](toSecureDataError(errUnboundCard, ec)), nil
	}

	t := c.ops.track(ctx, source, c.eventProps())

	if check != nil {
		if me := check(c.ops, &ec); me != nil {
			t.reject(me)
			return secureDataFailure[T](toSecureDataError(me, ec)), nil
		}
	}
	if _, ok := c.ops.sessionToken(); !ok {
		me := t.reject(&ManagementError{Kind: KindUnauthenticated})
		return secureDataFailure[T](toSecureDataError(me, ec)), nil
	}
	if singleUseToken == "" {
		me := t.reject(&ManagementError{Kind: KindAuthenticationFailure})
		return secureDataFailure[T](toSecureDataError(me, ec)), nil
	}

	svc := c.ops.service()
	v, me, err := invoke(c.ops, ctx, t, func(ctx context.Context) (T, error) {
		return network.First(ctx, call(ctx, svc))
	})
	if err != nil {
		return SecureDataResult[T]{}, err
	}
	if me != nil {
		return secureDataFailure[T](toSecureDataError(me, ec)), nil
	}

	t.success(event, nil)
	return secureDataSuccess(v), nil
}
