package models

import (
	"fmt"
	"time"

	"github.com/alovak/cardflow-issuing/internal/expiry"
)

// CardState is the lifecycle state of an issued card.
type CardState string

const (
	CardStateActive    CardState = "ACTIVE"
	CardStateInactive  CardState = "INACTIVE"
	CardStateSuspended CardState = "SUSPENDED"
	CardStateRevoked   CardState = "REVOKED"
)

// AllCardStates returns every declared card state.
func AllCardStates() []CardState {
	return []CardState{CardStateActive, CardStateInactive, CardStateSuspended, CardStateRevoked}
}

func (s CardState) Valid() bool {
	switch s {
	case CardStateActive, CardStateInactive, CardStateSuspended, CardStateRevoked:
		return true
	}
	return false
}

// ParseCardState accepts the canonical upper-case names.
func ParseCardState(s string) (CardState, error) {
	state := CardState(s)
	if !state.Valid() {
		return "", fmt.Errorf("unknown card state %q", s)
	}
	return state, nil
}

// ExpiryDate is the month/year printed on the card face.
type ExpiryDate struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// ParseExpiryDate accepts "MM/YY" or "MMYY".
func ParseExpiryDate(in string) (ExpiryDate, error) {
	yymm, err := expiry.ParseCardFace(in)
	if err != nil {
		return ExpiryDate{}, err
	}
	return ExpiryDateFromYYMM(yymm)
}

// ExpiryDateFromYYMM converts the network YYMM form.
func ExpiryDateFromYYMM(yymm string) (ExpiryDate, error) {
	year, month, err := expiry.SplitYYMM(yymm)
	if err != nil {
		return ExpiryDate{}, err
	}
	return ExpiryDate{Month: month, Year: year}, nil
}

func (d ExpiryDate) YYMM() string {
	return expiry.FormatYYMM(d.Year, d.Month)
}

// String renders the card face form MM/YY.
func (d ExpiryDate) String() string {
	return fmt.Sprintf("%02d/%02d", d.Month, d.Year%100)
}

// IsExpired reports whether at is after the last instant of the expiry month.
func (d ExpiryDate) IsExpired(at time.Time) bool {
	expired, err := expiry.IsExpired(d.YYMM(), at, time.UTC)
	return err == nil && expired
}

// Reason is the closed set of reason codes accepted by suspend and revoke.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonLost            Reason = "LOST"
	ReasonStolen          Reason = "STOLEN"
	ReasonFraud           Reason = "FRAUD"
	ReasonDamaged         Reason = "DAMAGED"
	ReasonCustomerRequest Reason = "CUSTOMER_REQUEST"
	ReasonIssuerRequest   Reason = "ISSUER_REQUEST"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonNone, ReasonLost, ReasonStolen, ReasonFraud, ReasonDamaged, ReasonCustomerRequest, ReasonIssuerRequest:
		return true
	}
	return false
}
