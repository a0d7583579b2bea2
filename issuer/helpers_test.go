package issuer_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/alovak/cardflow-issuing/issuer"
	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

// MockNetwork is a testify mock of network.Service. Stream methods accept
// either a ready network.Stream or a (value, error) pair in Return.
type MockNetwork struct {
	mock.Mock
}

func streamOf[T any](args mock.Arguments) network.Stream[T] {
	if s, ok := args.Get(0).(network.Stream[T]); ok {
		return s
	}
	v, _ := args.Get(0).(T)
	return network.Single(v, args.Error(1))
}

func (m *MockNetwork) IsTokenValid(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockNetwork) GetCards(ctx context.Context, token string, filter []network.Status) network.Stream[[]network.Card] {
	return streamOf[[]network.Card](m.Called(ctx, token, filter))
}

func (m *MockNetwork) GetCard(ctx context.Context, cardID, token string) (network.Card, error) {
	args := m.Called(ctx, cardID, token)
	card, _ := args.Get(0).(network.Card)
	return card, args.Error(1)
}

func (m *MockNetwork) ActivateCard(ctx context.Context, token, cardID string) network.Stream[network.Unit] {
	return streamOf[network.Unit](m.Called(ctx, token, cardID))
}

func (m *MockNetwork) SuspendCard(ctx context.Context, token string, reason models.Reason, cardID string) network.Stream[network.Unit] {
	return streamOf[network.Unit](m.Called(ctx, token, reason, cardID))
}

func (m *MockNetwork) RevokeCard(ctx context.Context, token string, reason models.Reason, cardID string) network.Stream[network.Unit] {
	return streamOf[network.Unit](m.Called(ctx, token, reason, cardID))
}

func (m *MockNetwork) DisplayPin(ctx context.Context, cardID, singleUseToken string, cfg network.ViewConfig) network.Stream[network.View] {
	return streamOf[network.View](m.Called(ctx, cardID, singleUseToken, cfg))
}

func (m *MockNetwork) DisplayPan(ctx context.Context, cardID, singleUseToken string, cfg network.ViewConfig) network.Stream[network.View] {
	return streamOf[network.View](m.Called(ctx, cardID, singleUseToken, cfg))
}

func (m *MockNetwork) DisplaySecurityCode(ctx context.Context, cardID, singleUseToken string, cfg network.ViewConfig) network.Stream[network.View] {
	return streamOf[network.View](m.Called(ctx, cardID, singleUseToken, cfg))
}

func (m *MockNetwork) DisplayPanAndSecurityCode(ctx context.Context, cardID, singleUseToken string, cfg network.ViewConfig) network.Stream[network.ViewPair] {
	return streamOf[network.ViewPair](m.Called(ctx, cardID, singleUseToken, cfg))
}

func (m *MockNetwork) CopyPan(ctx context.Context, cardID, singleUseToken string) network.Stream[network.Unit] {
	return streamOf[network.Unit](m.Called(ctx, cardID, singleUseToken))
}

func (m *MockNetwork) GetCardDigitizationState(ctx context.Context, cardID, token string) (models.DigitizationState, error) {
	args := m.Called(ctx, cardID, token)
	state, _ := args.Get(0).(models.DigitizationState)
	return state, args.Error(1)
}

func (m *MockNetwork) ConfigurePushProvisioning(ctx context.Context, cfg network.PushProvisioningConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockNetwork) AddCardToWallet(ctx context.Context, token, cardID string, req network.WalletRequest) error {
	return m.Called(ctx, token, cardID, req).Error(0)
}

func (m *MockNetwork) HandleWalletResult(ctx context.Context, res network.WalletResult) bool {
	return m.Called(ctx, res).Bool(0)
}

var _ network.Service = (*MockNetwork)(nil)

type recordingSink struct {
	mu     sync.Mutex
	events []issuer.Event
}

func (s *recordingSink) Emit(_ context.Context, e issuer.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Events() []issuer.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]issuer.Event(nil), s.events...)
}

// Single returns the only recorded event, failing if there is not exactly one.
func (s *recordingSink) Single(t *testing.T) issuer.Event {
	t.Helper()
	events := s.Events()
	require.Len(t, events, 1)
	return events[0]
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type textView struct {
	kind network.DataKind
}

func (v textView) Kind() network.DataKind { return v.kind }

func (v textView) Render(w io.Writer) error {
	_, err := io.WriteString(w, "****")
	return err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	manager *issuer.Manager
	net     *MockNetwork
	sink    *recordingSink
}

func newFixture(t *testing.T, configure ...func(*issuer.Config)) *fixture {
	t.Helper()

	cfg := issuer.DefaultConfig()
	for _, fn := range configure {
		fn(cfg)
	}
	f := &fixture{net: &MockNetwork{}, sink: &recordingSink{}}
	f.manager = issuer.NewManager(testLogger(), f.net, cfg, f.sink)
	t.Cleanup(func() { f.net.AssertExpectations(t) })
	return f
}

// login stores VALID as the session token and forgets the login event.
func (f *fixture) login(t *testing.T) {
	t.Helper()
	f.net.On("IsTokenValid", mock.Anything, "VALID").Return(true, nil).Once()
	require.True(t, f.manager.Login(context.Background(), "VALID"))
	f.sink.Reset()
}

func (f *fixture) card(t *testing.T, state models.CardState) issuer.Card {
	t.Helper()
	status := map[models.CardState]network.Status{
		models.CardStateActive:    network.StatusActive,
		models.CardStateInactive:  network.StatusInactive,
		models.CardStateSuspended: network.StatusSuspended,
		models.CardStateRevoked:   network.StatusRevoked,
	}[state]
	card, err := f.manager.CardFromRecord(network.Card{
		ID:         "card-1",
		Status:     status,
		Last4:      "4242",
		ExpiryYYMM: "3012",
	})
	require.NoError(t, err)
	return card
}

// blocked returns a stream that never yields and a channel closed once the
// network call was made.
func blocked[T any](call *mock.Call) (network.Stream[T], <-chan struct{}) {
	started := make(chan struct{})
	var once sync.Once
	call.Run(func(mock.Arguments) { once.Do(func() { close(started) }) })
	return make(chan network.Result[T]), started
}
