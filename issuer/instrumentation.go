package issuer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event names.
const (
	EventSessionLogin                    = "session_login"
	EventSessionLogout                   = "session_logout"
	EventCardsFetched                    = "cards_fetched"
	EventCardFetched                     = "card_fetched"
	EventCardStateManagement             = "card_state_management"
	EventCardPinDisplayed                = "card_pin_displayed"
	EventCardPanDisplayed                = "card_pan_displayed"
	EventCardSecurityCodeDisplayed       = "card_security_code_displayed"
	EventCardPanAndSecurityCodeDisplayed = "card_pan_and_security_code_displayed"
	EventCardPanCopied                   = "card_pan_copied"
	EventCardDigitizationStateFetched    = "card_digitization_state_fetched"
	EventCardAddedToWallet               = "card_added_to_wallet"
	EventPushProvisioningConfigured      = "push_provisioning_configured"
	EventOperationFailure                = "operation_failure"
	EventOperationCancelled              = "operation_cancelled"
)

// Sources identify the operation that emitted an event.
const (
	SourceLogin                     = "Manager.login"
	SourceLogout                    = "Manager.logout"
	SourceGetCards                  = "Manager.getCards"
	SourceGetCard                   = "Manager.getCard"
	SourceConfigurePushProvisioning = "Manager.configurePushProvisioning"
	SourceActivate                  = "Card.activate"
	SourceSuspend                   = "Card.suspend"
	SourceRevoke                    = "Card.revoke"
	SourceDisplayPin                = "Card.displayPin"
	SourceDisplayPan                = "Card.displayPan"
	SourceDisplaySecurityCode       = "Card.displaySecurityCode"
	SourceDisplayPanAndSecurityCode = "Card.displayPanAndSecurityCode"
	SourceCopyPan                   = "Card.copyPan"
	SourceDigitizationState         = "Card.getDigitizationState"
	SourceAddToWallet               = "Card.addToWallet"
)

// Event is a structured analytics record emitted once per operation.
type Event struct {
	ID         string
	Name       string
	Source     string
	Severity   Severity
	Properties map[string]any
	Duration   time.Duration
	OccurredAt time.Time
}

// Sink receives instrumentation events. Emit must not block for long; it is
// called on the goroutine that ran the operation.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "instrumentation"))}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	attrs := []any{
		slog.String("event_id", e.ID),
		slog.String("source", e.Source),
		slog.Int64("duration_ms", e.Duration.Milliseconds()),
	}
	for k, v := range e.Properties {
		attrs = append(attrs, slog.Any(k, v))
	}
	switch e.Severity {
	case SeverityError:
		s.logger.ErrorContext(ctx, e.Name, attrs...)
	case SeverityWarning:
		s.logger.WarnContext(ctx, e.Name, attrs...)
	default:
		s.logger.InfoContext(ctx, e.Name, attrs...)
	}
}

type legacyRequestKey struct{}

func withLegacyRequest(ctx context.Context) context.Context {
	return context.WithValue(ctx, legacyRequestKey{}, true)
}

func isLegacyRequest(ctx context.Context) bool {
	legacy, _ := ctx.Value(legacyRequestKey{}).(bool)
	return legacy
}

// tracker measures one operation and emits exactly one event for it.
type tracker struct {
	sink   Sink
	now    func() time.Time
	ctx    context.Context
	source string
	start  time.Time
	props  map[string]any
	once   sync.Once
}

// track captures the start time; call it before the first suspension point.
func (m *Manager) track(ctx context.Context, source string, props map[string]any) *tracker {
	base := make(map[string]any, len(props)+1)
	for k, v := range props {
		base[k] = v
	}
	base["is_legacy_request"] = isLegacyRequest(ctx)
	return &tracker{
		sink:   m.sink,
		now:    m.now,
		ctx:    ctx,
		source: source,
		start:  m.now(),
		props:  base,
	}
}

func (t *tracker) emit(name string, severity Severity, extra map[string]any) {
	t.once.Do(func() {
		end := t.now()
		props := make(map[string]any, len(t.props)+len(extra))
		for k, v := range t.props {
			props[k] = v
		}
		for k, v := range extra {
			props[k] = v
		}
		t.sink.Emit(context.WithoutCancel(t.ctx), Event{
			ID:         uuid.NewString(),
			Name:       name,
			Source:     t.source,
			Severity:   severity,
			Properties: props,
			Duration:   end.Sub(t.start),
			OccurredAt: end,
		})
	})
}

func (t *tracker) success(name string, extra map[string]any) {
	t.emit(name, SeverityInfo, extra)
}

// failure records the raw error together with its mapped kind.
func (t *tracker) failure(raw error, mapped *ManagementError) {
	extra := map[string]any{"error_kind": mapped.Kind.String()}
	if raw != nil {
		extra["error"] = raw.Error()
	}
	t.emit(EventOperationFailure, SeverityError, extra)
}

func (t *tracker) cancelled(err error) {
	t.emit(EventOperationCancelled, SeverityWarning, map[string]any{"error": err.Error()})
}
