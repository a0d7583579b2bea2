// Package security computes card verification values for the sandbox network.
package security

import "time"

// CVVProvider is the CVV computation contract used when rendering security codes.
type CVVProvider interface {
	// ComputeCVV2 computes a static CVV from the PAN without its check digit,
	// the YYMM expiry and a 3 digit service code. width is 3 or 4.
	ComputeCVV2(panNoCD, expiryYYMM, serviceCode string, width int) (string, error)

	// ComputeDisplayDCVV computes a time-windowed CVV and the seconds left in its window.
	ComputeDisplayDCVV(panNoCD, expiryYYMM, serviceCode string, step time.Duration, width int) (string, int, error)
}
