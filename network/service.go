// Package network describes the Card Network Service the issuer facade delegates to.
// Transport, cryptography and secure rendering live behind this contract.
package network

import (
	"context"
	"io"
	"time"

	"github.com/alovak/cardflow-issuing/issuer/models"
)

// Status is the network-level card status vocabulary.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

// Card is a card record as returned by the network.
type Card struct {
	ID             string
	Status         Status
	Last4          string
	ExpiryYYMM     string
	CardholderName string
}

// Unit is the value of streams that only signal completion.
type Unit struct{}

// DataKind names the sensitive data a protected view renders.
type DataKind string

const (
	DataKindPin          DataKind = "pin"
	DataKindPan          DataKind = "pan"
	DataKindSecurityCode DataKind = "security_code"
)

// View is an opaque protected rendering surface produced by the network.
type View interface {
	Kind() DataKind
	// Render writes the protected content to a trusted display surface.
	Render(w io.Writer) error
}

type ViewPair struct {
	Pan          View
	SecurityCode View
}

// ViewConfig is passed through to the network's renderer untouched.
type ViewConfig struct {
	Theme      string
	Grouping   bool
	AutoHide   time.Duration
	Attributes map[string]string
}

type PushProvisioningConfig struct {
	WalletProvider string
	IssuerID       string
	Environment    string
}

type WalletRequest struct {
	DisplayName string
	Address     string
}

// WalletResult is the outcome a device wallet hands back to the host application.
type WalletResult struct {
	RequestCode int
	ResultCode  int
	Data        map[string]string
}

// Service is the capability set consumed by the issuer facade.
type Service interface {
	IsTokenValid(ctx context.Context, token string) (bool, error)
	GetCards(ctx context.Context, token string, filter []Status) Stream[[]Card]
	GetCard(ctx context.Context, cardID, token string) (Card, error)

	ActivateCard(ctx context.Context, token, cardID string) Stream[Unit]
	SuspendCard(ctx context.Context, token string, reason models.Reason, cardID string) Stream[Unit]
	RevokeCard(ctx context.Context, token string, reason models.Reason, cardID string) Stream[Unit]

	DisplayPin(ctx context.Context, cardID, singleUseToken string, cfg ViewConfig) Stream[View]
	DisplayPan(ctx context.Context, cardID, singleUseToken string, cfg ViewConfig) Stream[View]
	DisplaySecurityCode(ctx context.Context, cardID, singleUseToken string, cfg ViewConfig) Stream[View]
	DisplayPanAndSecurityCode(ctx context.Context, cardID, singleUseToken string, cfg ViewConfig) Stream[ViewPair]
	CopyPan(ctx context.Context, cardID, singleUseToken string) Stream[Unit]

	GetCardDigitizationState(ctx context.Context, cardID, token string) (models.DigitizationState, error)
	ConfigurePushProvisioning(ctx context.Context, cfg PushProvisioningConfig) error
	AddCardToWallet(ctx context.Context, token, cardID string, req WalletRequest) error
	HandleWalletResult(ctx context.Context, res WalletResult) bool
}
