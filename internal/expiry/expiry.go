// Package expiry formats and checks card expiry dates.
package expiry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Policy decides validity years and the time zone used when issuing cards.
type Policy struct {
	Location     *time.Location
	ProductYears map[string]int
}

// DefaultPolicy issues credit cards for 3 years and debit cards for 5, in UTC.
func DefaultPolicy() Policy {
	return Policy{
		Location:     time.UTC,
		ProductYears: map[string]int{"credit": 3, "debit": 5},
	}
}

// YearsForProduct returns validity years for product unless override > 0.
func (p Policy) YearsForProduct(product string, override int) int {
	if override > 0 {
		return override
	}
	if y, ok := p.ProductYears[strings.ToLower(product)]; ok {
		return y
	}
	return 5
}

// YYMM returns expiry in YYMM for an issue date + years.
func (p Policy) YYMM(issue time.Time, years int) string {
	t := issue.In(p.location())
	return FormatYYMM(t.Year()+years, int(t.Month()))
}

// CardFace returns expiry as MM/YY for card imprint.
func (p Policy) CardFace(issue time.Time, years int) string {
	t := issue.In(p.location())
	return fmt.Sprintf("%02d/%02d", int(t.Month()), (t.Year()+years)%100)
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// FormatYYMM renders a year (two or four digits) and month as YYMM.
func FormatYYMM(year, month int) string {
	return fmt.Sprintf("%02d%02d", year%100, month)
}

// SplitYYMM returns the four digit year and the month of a YYMM value.
func SplitYYMM(yymm string) (year, month int, err error) {
	if err := ValidateYYMM(yymm); err != nil {
		return 0, 0, err
	}
	yy, _ := strconv.Atoi(yymm[:2])
	mm, _ := strconv.Atoi(yymm[2:])
	return 2000 + yy, mm, nil
}

// ParseYYMMEndOfMonth parses YYMM into the last instant of that month in loc.
func ParseYYMMEndOfMonth(yymm string, loc *time.Location) (time.Time, error) {
	year, month, err := SplitYYMM(yymm)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	firstNext := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	return firstNext.Add(-time.Nanosecond), nil
}

// IsExpired reports whether at is strictly after the end of the YYMM month in loc.
func IsExpired(yymm string, at time.Time, loc *time.Location) (bool, error) {
	end, err := ParseYYMMEndOfMonth(yymm, loc)
	if err != nil {
		return false, err
	}
	return at.In(end.Location()).After(end), nil
}

// ReissueDue returns true if at is within [end-windowDays, end] inclusive.
func ReissueDue(yymm string, at time.Time, loc *time.Location, windowDays int) (bool, error) {
	end, err := ParseYYMMEndOfMonth(yymm, loc)
	if err != nil {
		return false, err
	}
	start := end.AddDate(0, 0, -windowDays)
	at = at.In(end.Location())
	return !at.Before(start) && !at.After(end), nil
}

// ParseCardFace accepts "MM/YY" or "MMYY" and returns YYMM.
func ParseCardFace(in string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(in), "/", "")
	if len(s) != 4 {
		return "", fmt.Errorf("card face must be MM/YY or MMYY")
	}
	if !isDigits(s) {
		return "", fmt.Errorf("card face must be digits")
	}
	mm, _ := strconv.Atoi(s[:2])
	if mm < 1 || mm > 12 {
		return "", fmt.Errorf("month must be 01..12")
	}
	return s[2:] + s[:2], nil
}

// ValidateYYMM checks the YYMM shape and that the month is 01..12.
func ValidateYYMM(yymm string) error {
	if len(yymm) != 4 {
		return fmt.Errorf("expiry must be YYMM (4 digits)")
	}
	if !isDigits(yymm) {
		return fmt.Errorf("expiry must be digits: YYMM")
	}
	mm := int(yymm[2]-'0')*10 + int(yymm[3]-'0')
	if mm < 1 || mm > 12 {
		return fmt.Errorf("expiry month must be 01..12")
	}
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
