// Package cardgen generates and inspects primary account numbers.
package cardgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrExhausted is returned when every generated PAN was already taken.
var ErrExhausted = errors.New("no unused PAN found")

// Generator produces random Luhn-valid PANs under one BIN.
type Generator struct {
	bin    string
	length int
	rand   io.Reader
}

// NewGenerator validates bin and length (13..19) up front.
func NewGenerator(bin string, length int) (*Generator, error) {
	if err := ValidateBIN(bin); err != nil {
		return nil, err
	}
	if length < 13 || length > 19 {
		return nil, fmt.Errorf("pan length must be 13..19, got %d", length)
	}
	if length-1 <= len(bin) {
		return nil, fmt.Errorf("bin %s leaves no room for an account number", bin)
	}
	return &Generator{bin: bin, length: length, rand: rand.Reader}, nil
}

// Next returns a fresh PAN.
func (g *Generator) Next() (string, error) {
	account, err := g.digits(g.length - 1 - len(g.bin))
	if err != nil {
		return "", fmt.Errorf("reading random digits: %w", err)
	}
	body := g.bin + account
	return body + string(checkDigit(body)), nil
}

// NextUnused calls Next until taken reports false, giving up after attempts tries.
func (g *Generator) NextUnused(attempts int, taken func(pan string) (bool, error)) (string, error) {
	for i := 0; i < attempts; i++ {
		pan, err := g.Next()
		if err != nil {
			return "", err
		}
		used, err := taken(pan)
		if err != nil {
			return "", fmt.Errorf("checking pan: %w", err)
		}
		if !used {
			return pan, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}

// digits draws uniformly distributed decimal digits, discarding bytes >= 250.
func (g *Generator) digits(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, 32)
	for len(out) < n {
		read, err := g.rand.Read(buf)
		if err != nil {
			return "", err
		}
		for _, b := range buf[:read] {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// checkDigit computes the Luhn digit that completes body.
func checkDigit(body string) byte {
	sum := 0
	for i := 0; i < len(body); i++ {
		d := int(body[len(body)-1-i] - '0')
		if i%2 == 0 {
			if d *= 2; d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}

// ValidatePAN checks length 13..19, digits only and the Luhn check digit.
func ValidatePAN(pan string) error {
	switch {
	case pan == "":
		return errors.New("pan is required")
	case !IsDigits(pan):
		return errors.New("pan must contain digits only")
	case len(pan) < 13 || len(pan) > 19:
		return fmt.Errorf("pan length must be 13..19 digits, got %d", len(pan))
	case pan[len(pan)-1] != checkDigit(pan[:len(pan)-1]):
		return errors.New("invalid luhn check digit")
	}
	return nil
}

// ValidateBIN accepts 6, 8 or 9 digit BINs.
func ValidateBIN(bin string) error {
	if !IsDigits(bin) || bin == "" {
		return fmt.Errorf("bin %q must be numeric", bin)
	}
	if n := len(bin); n != 6 && n != 8 && n != 9 {
		return fmt.Errorf("bin must be 6, 8 or 9 digits, got %d", n)
	}
	return nil
}

func IsDigits(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}

func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MaskPAN keeps the first six and last four digits of a normalized PAN.
func MaskPAN(pan string) string {
	pan = NormalizePAN(pan)
	switch n := len(pan); {
	case n <= 4:
		return strings.Repeat("*", n)
	case n < 10:
		return strings.Repeat("*", n-4) + LastN(pan, 4)
	default:
		return pan[:6] + strings.Repeat("*", n-10) + LastN(pan, 4)
	}
}

// NormalizePAN drops the separators people type into card numbers.
func NormalizePAN(s string) string {
	return strings.NewReplacer(" ", "", "\t", "", "-", "").Replace(s)
}
