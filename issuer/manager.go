package issuer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alovak/cardflow-issuing/internal/cardgen"
	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"golang.org/x/exp/slog"
)

// Manager is the entry point of the card management facade. It owns the
// session and a cancellable scope that every session-dependent operation
// runs under. Logout cancels the scope.
type Manager struct {
	network network.Service
	config  *Config
	logger  *slog.Logger
	sink    Sink
	session *Session
	now     func() time.Time

	mu       sync.Mutex
	scope    context.Context
	cancel   context.CancelFunc
	dispatch func(func())
	wg       sync.WaitGroup
}

// NewManager creates a manager delegating to svc. Events go to a LogSink on
// logger and to every extra sink.
func NewManager(logger *slog.Logger, svc network.Service, config *Config, sinks ...Sink) *Manager {
	logger = logger.With(slog.String("component", "card-manager"))
	if config == nil {
		config = DefaultConfig()
	}

	m := &Manager{
		network:  svc,
		config:   config,
		logger:   logger,
		sink:     append(MultiSink{NewLogSink(logger)}, sinks...),
		session:  newSession(),
		now:      time.Now,
		dispatch: func(fn func()) { fn() },
	}
	m.scope, m.cancel = context.WithCancel(context.Background())
	return m
}

// Session exposes the session holder for observers.
func (m *Manager) Session() *Session {
	return m.session
}

// Token returns the current session token.
func (m *Manager) Token() (string, bool) {
	return m.session.Token()
}

// SetCallbackDispatcher changes how legacy callbacks are delivered, for
// example onto a UI goroutine. By default callbacks run on the worker goroutine.
func (m *Manager) SetCallbackDispatcher(dispatch func(func())) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatch = dispatch
}

// Login validates token with the network and stores it when valid.
// A rejected token never erases a previous session unless the config asks
// for ClearSessionOnFailedLogin.
func (m *Manager) Login(ctx context.Context, token string) bool {
	ok, _ := m.login(ctx, token)
	return ok
}

func (m *Manager) login(ctx context.Context, token string) (bool, error) {
	t := m.track(ctx, SourceLogin, nil)

	// a Logout during validation replaces the scope and must win
	m.mu.Lock()
	scope := m.scope
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(scope, cancel)
	defer func() {
		stop()
		cancel()
	}()

	valid := false
	if token != "" {
		var err error
		valid, err = m.network.IsTokenValid(ctx, token)
		if err != nil {
			if isCancellation(ctx, err) {
				t.cancelled(err)
				return false, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			m.logger.Error("validating session token", slog.Any("err", err))
			t.failure(err, ToManagementError(err))
			return false, nil
		}
	}

	if !valid {
		if m.config.FailedLoginPolicy == ClearSessionOnFailedLogin {
			m.session.clear()
		}
		t.failure(nil, &ManagementError{Kind: KindAuthenticationFailure})
		return false, nil
	}

	m.mu.Lock()
	if err := scope.Err(); err != nil {
		m.mu.Unlock()
		t.cancelled(err)
		return false, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	m.session.set(token)
	m.mu.Unlock()

	t.success(EventSessionLogin, nil)
	return true, nil
}

// Logout clears the session and cancels every operation in flight.
func (m *Manager) Logout() {
	t := m.track(context.Background(), SourceLogout, nil)

	m.mu.Lock()
	m.session.clear()
	m.cancel()
	m.scope, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	t.success(EventSessionLogout, nil)
}

// Wait blocks until all callback operations launched so far have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// GetCards lists the session's cards, optionally restricted to states.
func (m *Manager) GetCards(ctx context.Context, states ...models.CardState) (OperationResult[[]Card], error) {
	t := m.track(ctx, SourceGetCards, map[string]any{"states": states})

	filter, err := statusFilter(states)
	if err != nil {
		me := t.reject(&ManagementError{Kind: KindConfigurationIssue, Hint: err.Error()})
		return operationFailure[[]Card](toOperationError(me, errorContext{})), nil
	}
	token, ok := m.sessionToken()
	if !ok {
		me := t.reject(&ManagementError{Kind: KindUnauthenticated})
		return operationFailure[[]Card](toOperationError(me, errorContext{})), nil
	}

	cards, me, err := invoke(m, ctx, t, func(ctx context.Context) ([]Card, error) {
		records, err := network.First(ctx, m.network.GetCards(ctx, token, filter))
		if err != nil {
			return nil, err
		}
		cards := make([]Card, 0, len(records))
		for _, rec := range records {
			card, err := m.cardFromRecord(rec)
			if err != nil {
				return nil, err
			}
			cards = append(cards, card)
		}
		return cards, nil
	})
	if err != nil {
		return OperationResult[[]Card]{}, err
	}
	if me != nil {
		return operationFailure[[]Card](toOperationError(me, errorContext{})), nil
	}

	t.success(EventCardsFetched, map[string]any{"count": len(cards)})
	return operationSuccess(cards), nil
}

// GetCard fetches a single card by id.
func (m *Manager) GetCard(ctx context.Context, cardID string) (OperationResult[Card], error) {
	t := m.track(ctx, SourceGetCard, map[string]any{"card_id": cardID})
	ec := errorContext{cardID: cardID}

	token, ok := m.sessionToken()
	if !ok {
		me := t.reject(&ManagementError{Kind: KindUnauthenticated})
		return operationFailure[Card](toOperationError(me, ec)), nil
	}

	card, me, err := invoke(m, ctx, t, func(ctx context.Context) (Card, error) {
		rec, err := m.network.GetCard(ctx, cardID, token)
		if err != nil {
			return Card{}, err
		}
		return m.cardFromRecord(rec)
	})
	if err != nil {
		return OperationResult[Card]{}, err
	}
	if me != nil {
		return operationFailure[Card](toOperationError(me, ec)), nil
	}

	t.success(EventCardFetched, map[string]any{"card_state": string(card.State)})
	return operationSuccess(card), nil
}

// CardFromRecord builds a Card bound to this manager from a network record.
func (m *Manager) CardFromRecord(rec network.Card) (Card, error) {
	return m.cardFromRecord(rec)
}

func (m *Manager) cardFromRecord(rec network.Card) (Card, error) {
	state, ok := cardStateFromStatus(rec.Status)
	if !ok {
		return Card{}, network.NewError(network.ErrorKindServerError, "card %s: unknown status %q", rec.ID, rec.Status)
	}
	if len(rec.Last4) != 4 || !cardgen.IsDigits(rec.Last4) {
		return Card{}, network.NewError(network.ErrorKindServerError, "card %s: malformed last4", rec.ID)
	}
	exp, err := models.ExpiryDateFromYYMM(rec.ExpiryYYMM)
	if err != nil {
		return Card{}, &network.Error{Kind: network.ErrorKindServerError, Message: "card " + rec.ID + ": malformed expiry", Cause: err}
	}
	return Card{
		ID:             rec.ID,
		State:          state,
		PanLast4Digits: rec.Last4,
		ExpiryDate:     exp,
		CardholderName: rec.CardholderName,
		ops:            m,
	}, nil
}

// cardOperations implementation

func (m *Manager) sessionToken() (string, bool) {
	return m.session.Token()
}

func (m *Manager) service() network.Service {
	return m.network
}

func (m *Manager) platform() (version, required int) {
	return m.config.PlatformAPIVersion, m.config.MinCopyPanAPIVersion
}

// bind derives a context that ends when either parent or the current
// manager scope ends.
func (m *Manager) bind(parent context.Context) (context.Context, context.CancelFunc) {
	m.mu.Lock()
	scope := m.scope
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(scope, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// launch runs fn on the manager scope. A failing operation never cancels
// its siblings; only Logout cancels the scope.
func (m *Manager) launch(fn func(ctx context.Context)) {
	m.mu.Lock()
	scope := m.scope
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(scope)
	}()
}

func (m *Manager) deliver(fn func()) {
	m.mu.Lock()
	dispatch := m.dispatch
	m.mu.Unlock()
	dispatch(fn)
}

var _ cardOperations = (*Manager)(nil)

var cardStatuses = map[models.CardState]network.Status{
	models.CardStateActive:    network.StatusActive,
	models.CardStateInactive:  network.StatusInactive,
	models.CardStateSuspended: network.StatusSuspended,
	models.CardStateRevoked:   network.StatusRevoked,
}

func cardStateFromStatus(status network.Status) (models.CardState, bool) {
	for state, s := range cardStatuses {
		if s == status {
			return state, true
		}
	}
	return "", false
}

// statusFilter maps states to the network vocabulary, keeping the caller's
// order and dropping duplicates.
func statusFilter(states []models.CardState) ([]network.Status, error) {
	if len(states) == 0 {
		return nil, nil
	}
	seen := make(map[models.CardState]bool, len(states))
	filter := make([]network.Status, 0, len(states))
	for _, s := range states {
		status, ok := cardStatuses[s]
		if !ok {
			return nil, fmt.Errorf("unknown card state %q", s)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		filter = append(filter, status)
	}
	return filter, nil
}

// invoke runs call under the manager scope and classifies its outcome:
// a value, a mapped failure (already reported to t), or ErrCancelled.
func invoke[T any](ops cardOperations, ctx context.Context, t *tracker, call func(context.Context) (T, error)) (T, *ManagementError, error) {
	ctx, done := ops.bind(ctx)
	defer done()

	v, err := call(ctx)
	if err == nil {
		return v, nil, nil
	}
	if isCancellation(ctx, err) {
		t.cancelled(err)
		return v, nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	me := ToManagementError(err)
	t.failure(err, me)
	return v, me, nil
}

// reject reports a locally detected failure and returns it.
func (t *tracker) reject(me *ManagementError) *ManagementError {
	t.failure(me, me)
	return me
}
