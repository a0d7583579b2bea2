// Package sandbox is a simulated card network. It implements network.Service
// on top of a memory or Postgres card store so the card management facade can
// run end to end without a real issuer platform.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alovak/cardflow-issuing/internal/cardgen"
	"github.com/alovak/cardflow-issuing/internal/expiry"
	"github.com/alovak/cardflow-issuing/internal/security"
	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// WalletRequestCode tags wallet results that belong to push provisioning.
const WalletRequestCode = 9001

// WalletResultOK is the result code of an accepted provisioning.
const WalletResultOK = 0

const panLength = 16

type Config struct {
	BIN     string
	Product string
	Expiry  expiry.Policy
	// SingleUseTokenTTL bounds how long a secure data token stays redeemable.
	SingleUseTokenTTL time.Duration
	// SecurityCodeStep is the validity window of rendered security codes.
	SecurityCodeStep time.Duration
	// Latency delays every streamed answer.
	Latency time.Duration
}

func DefaultConfig() Config {
	return Config{
		BIN:               "421234",
		Product:           "debit",
		Expiry:            expiry.DefaultPolicy(),
		SingleUseTokenTTL: 5 * time.Minute,
		SecurityCodeStep:  30 * time.Second,
	}
}

type grant struct {
	cardID  string
	expires time.Time
}

// Service is the sandbox card network.
type Service struct {
	repo   *Repository
	pans   *cardgen.Generator
	cfg    Config
	cvv    security.CVVProvider
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	sessions     map[string]struct{}
	grants       map[string]grant
	panViewed    map[string]struct{}
	clipboard    string
	provisioning *network.PushProvisioningConfig
}

func NewService(logger *slog.Logger, repo *Repository, cvv security.CVVProvider, cfg Config) *Service {
	if err := cardgen.ValidateBIN(cfg.BIN); err != nil {
		cfg.BIN = DefaultConfig().BIN
	}
	pans, _ := cardgen.NewGenerator(cfg.BIN, panLength)
	return &Service{
		pans:      pans,
		repo:      repo,
		cfg:       cfg,
		cvv:       cvv,
		logger:    logger.With(slog.String("component", "sandbox-network")),
		now:       time.Now,
		sessions:  make(map[string]struct{}),
		grants:    make(map[string]grant),
		panViewed: make(map[string]struct{}),
	}
}

// AddSession makes token a valid session token.
func (s *Service) AddSession(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = struct{}{}
}

func (s *Service) hasSession(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	return ok
}

// IssueCard issues an inactive card owned by the session token owner.
func (s *Service) IssueCard(ctx context.Context, owner, cardholderName string) (*CardRecord, error) {
	if !s.hasSession(owner) {
		return nil, fmt.Errorf("unknown session: %w", ErrNotFound)
	}

	years := s.cfg.Expiry.YearsForProduct(s.cfg.Product, 0)
	expYYMM := s.cfg.Expiry.YYMM(s.now(), years)
	exists := func(pan string) (bool, error) { return s.repo.ExistsPAN(ctx, pan) }

	// retry on insert conflicts that slip past the existence check
	for attempt := 0; attempt < 5; attempt++ {
		pan, err := s.pans.NextUnused(10, exists)
		if err != nil {
			return nil, fmt.Errorf("generate unique pan: %w", err)
		}
		card := &CardRecord{
			ID:             uuid.New().String(),
			Owner:          owner,
			PAN:            pan,
			Last4:          cardgen.LastN(pan, 4),
			ExpiryYYMM:     expYYMM,
			CardholderName: cardholderName,
			Status:         network.StatusInactive,
			Digitization:   models.DigitizationStateNotDigitized,
		}
		err = s.repo.CreateCard(ctx, card)
		if err == nil {
			s.logger.Info("card issued", slog.String("card_id", card.ID), slog.String("pan", cardgen.MaskPAN(pan)))
			return card, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("creating card: %w", err)
		}
	}
	return nil, fmt.Errorf("could not create unique card after retries")
}

// IssueSingleUseToken grants one secure data operation on cardID.
func (s *Service) IssueSingleUseToken(ctx context.Context, owner, cardID string) (string, error) {
	if _, err := s.ownedCard(ctx, owner, cardID); err != nil {
		return "", err
	}

	token := uuid.New().String()
	s.mu.Lock()
	s.grants[token] = grant{cardID: cardID, expires: s.now().Add(s.cfg.SingleUseTokenTTL)}
	s.mu.Unlock()
	return token, nil
}

// Clipboard returns the last copied PAN.
func (s *Service) Clipboard() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipboard
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) IsTokenValid(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.hasSession(token), nil
}

func (s *Service) GetCards(ctx context.Context, token string, filter []network.Status) network.Stream[[]network.Card] {
	return async(ctx, s.cfg.Latency, func() ([]network.Card, error) {
		if !s.hasSession(token) {
			return nil, network.NewError(network.ErrorKindUnauthenticated, "session token rejected")
		}
		records, err := s.repo.ListCards(ctx, token, filter)
		if err != nil {
			return nil, &network.Error{Kind: network.ErrorKindServerError, Message: "listing cards", Cause: err}
		}
		cards := make([]network.Card, 0, len(records))
		for _, rec := range records {
			cards = append(cards, rec.toNetwork())
		}
		return cards, nil
	})
}

func (s *Service) GetCard(ctx context.Context, cardID, token string) (network.Card, error) {
	rec, err := s.ownedCard(ctx, token, cardID)
	if err != nil {
		return network.Card{}, err
	}
	return rec.toNetwork(), nil
}

// allowedFrom lists, per target status, the statuses the network accepts a
// change from.
var allowedFrom = map[network.Status][]network.Status{
	network.StatusActive:    {network.StatusInactive, network.StatusSuspended},
	network.StatusSuspended: {network.StatusActive},
	network.StatusRevoked:   {network.StatusActive, network.StatusInactive, network.StatusSuspended},
}

func (s *Service) ActivateCard(ctx context.Context, token, cardID string) network.Stream[network.Unit] {
	return s.changeStatus(ctx, token, cardID, network.StatusActive, models.ReasonNone)
}

func (s *Service) SuspendCard(ctx context.Context, token string, reason models.Reason, cardID string) network.Stream[network.Unit] {
	return s.changeStatus(ctx, token, cardID, network.StatusSuspended, reason)
}

func (s *Service) RevokeCard(ctx context.Context, token string, reason models.Reason, cardID string) network.Stream[network.Unit] {
	return s.changeStatus(ctx, token, cardID, network.StatusRevoked, reason)
}

func (s *Service) changeStatus(ctx context.Context, token, cardID string, to network.Status, reason models.Reason) network.Stream[network.Unit] {
	return async(ctx, s.cfg.Latency, func() (network.Unit, error) {
		if !reason.Valid() {
			return network.Unit{}, &network.Error{Kind: network.ErrorKindConfiguration, Message: "unknown reason", Hint: "reason must be one of the documented values"}
		}
		if _, err := s.ownedCard(ctx, token, cardID); err != nil {
			return network.Unit{}, err
		}
		err := s.repo.UpdateStatus(ctx, cardID, allowedFrom[to], to)
		if errors.Is(err, ErrConflict) {
			return network.Unit{}, &network.Error{Kind: network.ErrorKindInvalidStateRequested, Message: "transition rejected", Cause: err}
		}
		if err != nil {
			return network.Unit{}, &network.Error{Kind: network.ErrorKindServerError, Message: "updating card", Cause: err}
		}
		if to == network.StatusRevoked {
			s.mu.Lock()
			delete(s.panViewed, cardID)
			s.mu.Unlock()
		}
		s.logger.Info("card status changed",
			slog.String("card_id", cardID),
			slog.String("status", string(to)),
			slog.String("reason", string(reason)),
		)
		return network.Unit{}, nil
	})
}

// ownedCard loads cardID for the session token. Cards of other sessions are
// reported as missing.
func (s *Service) ownedCard(ctx context.Context, token, cardID string) (*CardRecord, error) {
	if !s.hasSession(token) {
		return nil, network.NewError(network.ErrorKindUnauthenticated, "session token rejected")
	}
	rec, err := s.repo.GetCard(ctx, cardID)
	if errors.Is(err, ErrNotFound) || (err == nil && rec.Owner != token) {
		return nil, network.NewError(network.ErrorKindServerError, "card %s not found", cardID)
	}
	if err != nil {
		return nil, &network.Error{Kind: network.ErrorKindServerError, Message: "loading card", Cause: err}
	}
	return rec, nil
}

// redeem consumes a single-use token for cardID.
func (s *Service) redeem(ctx context.Context, cardID, singleUseToken string) (*CardRecord, error) {
	s.mu.Lock()
	g, ok := s.grants[singleUseToken]
	delete(s.grants, singleUseToken)
	s.mu.Unlock()

	if !ok || g.cardID != cardID || s.now().After(g.expires) {
		return nil, network.NewError(network.ErrorKindAuthenticationFailure, "single-use token rejected")
	}
	rec, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, &network.Error{Kind: network.ErrorKindServerError, Message: "loading card", Cause: err}
	}
	if rec.Status == network.StatusRevoked {
		return nil, network.NewError(network.ErrorKindSecureOperationFailure, "card %s is revoked", cardID)
	}
	return rec, nil
}

func (s *Service) DisplayPin(ctx context.Context, cardID, singleUseToken string, cfg network.ViewConfig) network.Stream[network.View] {
	return async(ctx, s.cfg.Latency, func() (network.View, error) {
		rec, err := s.redeem(ctx, cardID, singleUseToken)
		if err != nil {
			return nil, err
		}
		return s.pinView(rec, cfg)
	})
}

func (s *Service) DisplayPan(ctx context.Context, cardID, singleUseToken string, cfg network.ViewConfig) network.Stream[network.View] {
	return async(ctx, s.cfg.Latency, func() (network.View, error) {
		rec, err := s.redeem(ctx, cardID, singleUseToken)
		if err != nil {
			return nil, err
		}
		s.markPanViewed(cardID)
		return panView(rec, cfg), nil
	})
}

func (s *Service) DisplaySecurityCode(ctx context.Context, cardID, singleUseToken string, cfg network.ViewConfig) network.Stream[network.View] {
	return async(ctx, s.cfg.Latency, func() (network.View, error) {
		rec, err := s.redeem(ctx, cardID, singleUseToken)
		if err != nil {
			return nil, err
		}
		return s.securityCodeView(rec, cfg)
	})
}

func (s *Service) DisplayPanAndSecurityCode(ctx context.Context, cardID, singleUseToken string, cfg network.ViewConfig) network.Stream[network.ViewPair] {
	return async(ctx, s.cfg.Latency, func() (network.ViewPair, error) {
		rec, err := s.redeem(ctx, cardID, singleUseToken)
		if err != nil {
			return network.ViewPair{}, err
		}
		code, err := s.securityCodeView(rec, cfg)
		if err != nil {
			return network.ViewPair{}, err
		}
		s.markPanViewed(cardID)
		return network.ViewPair{Pan: panView(rec, cfg), SecurityCode: code}, nil
	})
}

func (s *Service) CopyPan(ctx context.Context, cardID, singleUseToken string) network.Stream[network.Unit] {
	return async(ctx, s.cfg.Latency, func() (network.Unit, error) {
		s.mu.Lock()
		_, viewed := s.panViewed[cardID]
		s.mu.Unlock()
		if !viewed {
			return network.Unit{}, network.NewError(network.ErrorKindPanNotViewed, "display the PAN of card %s first", cardID)
		}
		rec, err := s.redeem(ctx, cardID, singleUseToken)
		if err != nil {
			return network.Unit{}, err
		}
		s.mu.Lock()
		s.clipboard = rec.PAN
		s.mu.Unlock()
		return network.Unit{}, nil
	})
}

func (s *Service) markPanViewed(cardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panViewed[cardID] = struct{}{}
}

func (s *Service) GetCardDigitizationState(ctx context.Context, cardID, token string) (models.DigitizationState, error) {
	if !s.hasSession(token) {
		return "", &network.Error{Kind: network.ErrorKindDigitizationState, Message: "session token rejected", Digitization: models.DigitizationFailureNotLoggedIn}
	}
	rec, err := s.ownedCard(ctx, token, cardID)
	if err != nil {
		return "", &network.Error{Kind: network.ErrorKindDigitizationState, Message: "card lookup failed", Digitization: models.DigitizationFailureCardNotFound, Cause: err}
	}
	return rec.Digitization, nil
}

func (s *Service) ConfigurePushProvisioning(ctx context.Context, cfg network.PushProvisioningConfig) error {
	switch cfg.Environment {
	case "", "sandbox":
	default:
		return &network.Error{Kind: network.ErrorKindConfiguration, Message: "unsupported environment " + cfg.Environment, Hint: `the sandbox only accepts the "sandbox" environment`}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisioning = &cfg
	return nil
}

func (s *Service) AddCardToWallet(ctx context.Context, token, cardID string, req network.WalletRequest) error {
	s.mu.Lock()
	configured := s.provisioning != nil
	s.mu.Unlock()

	if !configured {
		return &network.Error{Kind: network.ErrorKindPushProvisioning, Message: "push provisioning is not configured", Provisioning: models.ProvisioningFailureMisconfigured}
	}
	if !s.hasSession(token) {
		return &network.Error{Kind: network.ErrorKindPushProvisioning, Message: "session token rejected", Provisioning: models.ProvisioningFailureNotLoggedIn}
	}
	rec, err := s.ownedCard(ctx, token, cardID)
	if err != nil {
		return &network.Error{Kind: network.ErrorKindPushProvisioning, Message: "card lookup failed", Provisioning: models.ProvisioningFailureCardNotFound, Cause: err}
	}
	if rec.Status == network.StatusRevoked {
		return &network.Error{Kind: network.ErrorKindPushProvisioning, Message: "card is revoked", Provisioning: models.ProvisioningFailureCardNotFound}
	}
	if rec.Digitization != models.DigitizationStateNotDigitized {
		return nil
	}
	if err := s.repo.UpdateDigitization(ctx, cardID, models.DigitizationStatePending); err != nil {
		return &network.Error{Kind: network.ErrorKindServerError, Message: "updating digitization", Cause: err}
	}
	s.logger.Info("wallet provisioning started", slog.String("card_id", cardID), slog.String("display_name", req.DisplayName))
	return nil
}

// HandleWalletResult completes a pending provisioning. The card id travels
// in res.Data["card_id"].
func (s *Service) HandleWalletResult(ctx context.Context, res network.WalletResult) bool {
	if res.RequestCode != WalletRequestCode {
		return false
	}
	cardID := res.Data["card_id"]
	rec, err := s.repo.GetCard(ctx, cardID)
	if err != nil || rec.Digitization != models.DigitizationStatePending {
		s.logger.Warn("wallet result for unknown provisioning", slog.String("card_id", cardID))
		return true
	}

	state := models.DigitizationStateNotDigitized
	if res.ResultCode == WalletResultOK {
		state = models.DigitizationStateDigitized
	}
	if err := s.repo.UpdateDigitization(ctx, cardID, state); err != nil {
		s.logger.Error("updating digitization", slog.String("card_id", cardID), slog.Any("err", err))
	}
	return true
}

var _ network.Service = (*Service)(nil)

// async answers on a stream after the configured latency. A cancelled ctx
// closes the stream without a value.
func async[T any](ctx context.Context, latency time.Duration, fn func() (T, error)) network.Stream[T] {
	ch := make(chan network.Result[T], 1)
	go func() {
		defer close(ch)
		if latency > 0 {
			timer := time.NewTimer(latency)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		v, err := fn()
		ch <- network.Result[T]{Value: v, Err: err}
	}()
	return ch
}
