package network

import (
	"context"
	"errors"
	"time"

	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/exp/slog"
)

// BreakerConfig configures the circuit breaker placed in front of the network.
type BreakerConfig struct {
	// MaxRequests is the number of requests allowed in half-open state.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive transport failures that trips the breaker.
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerService guards a Service with a circuit breaker. Only transport
// failures count against the breaker; business errors pass through.
// While open, calls fail fast with ErrorKindConnectionFailure.
type BreakerService struct {
	next   Service
	cb     *gobreaker.CircuitBreaker[any]
	logger *slog.Logger
}

func NewBreakerService(logger *slog.Logger, next Service, cfg BreakerConfig) *BreakerService {
	b := &BreakerService{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "card-network",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return !isTransportFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return b
}

// State exposes the breaker state for readiness checks.
func (b *BreakerService) State() gobreaker.State {
	return b.cb.State()
}

func isTransportFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Kind == ErrorKindConnectionFailure || nerr.Kind == ErrorKindServerError
	}
	return true
}

func execute[T any](b *BreakerService, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	v, _ := out.(T)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, &Error{Kind: ErrorKindConnectionFailure, Message: "card network unavailable", Cause: err}
	}
	return v, err
}

func guardStream[T any](ctx context.Context, b *BreakerService, call func() Stream[T]) Stream[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		v, err := execute(b, func() (T, error) { return First(ctx, call()) })
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}

func (b *BreakerService) IsTokenValid(ctx context.Context, token string) (bool, error) {
	return execute(b, func() (bool, error) { return b.next.IsTokenValid(ctx, token) })
}

func (b *BreakerService) GetCards(ctx context.Context, token string, filter []Status) Stream[[]Card] {
	return guardStream(ctx, b, func() Stream[[]Card] { return b.next.GetCards(ctx, token, filter) })
}

func (b *BreakerService) GetCard(ctx context.Context, cardID, token string) (Card, error) {
	return execute(b, func() (Card, error) { return b.next.GetCard(ctx, cardID, token) })
}

func (b *BreakerService) ActivateCard(ctx context.Context, token, cardID string) Stream[Unit] {
	return guardStream(ctx, b, func() Stream[Unit] { return b.next.ActivateCard(ctx, token, cardID) })
}

func (b *BreakerService) SuspendCard(ctx context.Context, token string, reason models.Reason, cardID string) Stream[Unit] {
	return guardStream(ctx, b, func() Stream[Unit] { return b.next.SuspendCard(ctx, token, reason, cardID) })
}

func (b *BreakerService) RevokeCard(ctx context.Context, token string, reason models.Reason, cardID string) Stream[Unit] {
	return guardStream(ctx, b, func() Stream[Unit] { return b.next.RevokeCard(ctx, token, reason, cardID) })
}

func (b *BreakerService) DisplayPin(ctx context.Context, cardID, singleUseToken string, cfg ViewConfig) Stream[View] {
	return guardStream(ctx, b, func() Stream[View] { return b.next.DisplayPin(ctx, cardID, singleUseToken, cfg) })
}

func (b *BreakerService) DisplayPan(ctx context.Context, cardID, singleUseToken string, cfg ViewConfig) Stream[View] {
	return guardStream(ctx, b, func() Stream[View] { return b.next.DisplayPan(ctx, cardID, singleUseToken, cfg) })
}

func (b *BreakerService) DisplaySecurityCode(ctx context.Context, cardID, singleUseToken string, cfg ViewConfig) Stream[View] {
	return guardStream(ctx, b, func() Stream[View] { return b.next.DisplaySecurityCode(ctx, cardID, singleUseToken, cfg) })
}

func (b *BreakerService) DisplayPanAndSecurityCode(ctx context.Context, cardID, singleUseToken string, cfg ViewConfig) Stream[ViewPair] {
	return guardStream(ctx, b, func() Stream[ViewPair] {
		return b.next.DisplayPanAndSecurityCode(ctx, cardID, singleUseToken, cfg)
	})
}

func (b *BreakerService) CopyPan(ctx context.Context, cardID, singleUseToken string) Stream[Unit] {
	return guardStream(ctx, b, func() Stream[Unit] { return b.next.CopyPan(ctx, cardID, singleUseToken) })
}

func (b *BreakerService) GetCardDigitizationState(ctx context.Context, cardID, token string) (models.DigitizationState, error) {
	return execute(b, func() (models.DigitizationState, error) {
		return b.next.GetCardDigitizationState(ctx, cardID, token)
	})
}

func (b *BreakerService) ConfigurePushProvisioning(ctx context.Context, cfg PushProvisioningConfig) error {
	_, err := execute(b, func() (Unit, error) { return Unit{}, b.next.ConfigurePushProvisioning(ctx, cfg) })
	return err
}

func (b *BreakerService) AddCardToWallet(ctx context.Context, token, cardID string, req WalletRequest) error {
	_, err := execute(b, func() (Unit, error) { return Unit{}, b.next.AddCardToWallet(ctx, token, cardID, req) })
	return err
}

// HandleWalletResult is local to the device wallet and bypasses the breaker.
func (b *BreakerService) HandleWalletResult(ctx context.Context, res WalletResult) bool {
	return b.next.HandleWalletResult(ctx, res)
}

var _ Service = (*BreakerService)(nil)
