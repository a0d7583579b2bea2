package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/alovak/cardflow-issuing/internal/cardgen"
	"github.com/alovak/cardflow-issuing/internal/expiry"
)

// Domain separation labels.
const (
	domainStatic  = "static-v1"
	domainDynamic = "dynamic-v1"
)

var ErrKeyMissing = errors.New("cvv key is required")

// HMACProvider derives CVVs with HMAC-SHA256 and dynamic truncation.
// It is meant for sandbox rendering only, never for authorization.
type HMACProvider struct {
	key []byte
	now func() time.Time
}

func NewHMACProvider(key []byte) *HMACProvider {
	return &HMACProvider{key: key, now: time.Now}
}

func (p *HMACProvider) ComputeCVV2(panNoCD, yymm, sc string, width int) (string, error) {
	if err := p.validate(panNoCD, yymm, sc); err != nil {
		return "", err
	}
	msg := []byte(panNoCD + "|" + yymm + "|" + sc + "|" + domainStatic)
	return hmacTruncatedDecimal(p.key, msg, nil, width), nil
}

func (p *HMACProvider) ComputeDisplayDCVV(panNoCD, yymm, sc string, step time.Duration, width int) (string, int, error) {
	if err := p.validate(panNoCD, yymm, sc); err != nil {
		return "", 0, err
	}
	step = normalizeStep(step)
	now := p.now().UTC()

	sec := int64(step / time.Second)
	window := make([]byte, 8)
	binary.BigEndian.PutUint64(window, uint64(now.Unix()/sec))

	ttl := int(sec - now.Unix()%sec)
	if ttl <= 0 {
		ttl = int(sec)
	}
	msg := []byte(panNoCD + "|" + yymm + "|" + sc + "|" + domainDynamic)
	return hmacTruncatedDecimal(p.key, msg, window, width), ttl, nil
}

func (p *HMACProvider) validate(panNoCD, yymm, sc string) error {
	if len(p.key) == 0 {
		return ErrKeyMissing
	}
	if err := expiry.ValidateYYMM(yymm); err != nil {
		return err
	}
	if len(sc) != 3 || !cardgen.IsDigits(sc) {
		return fmt.Errorf("service code must be 3 digits")
	}
	if panNoCD == "" || !cardgen.IsDigits(panNoCD) {
		return fmt.Errorf("panNoCD must be digits only")
	}
	if l := len(panNoCD); l < 12 || l > 18 {
		return fmt.Errorf("panNoCD length must be 12..18 (got %d)", l)
	}
	return nil
}

// normalizeStep clamps to at least one second and aligns to whole seconds.
func normalizeStep(step time.Duration) time.Duration {
	if step < time.Second {
		return 30 * time.Second
	}
	return (step / time.Second) * time.Second
}

func hmacTruncatedDecimal(key, msg, extra []byte, width int) string {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	if len(extra) > 0 {
		h.Write(extra)
	}
	sum := h.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[off])&0x7f)<<24 |
		uint32(sum[off+1])<<16 |
		uint32(sum[off+2])<<8 |
		uint32(sum[off+3])
	if width == 4 {
		return fmt.Sprintf("%04d", code%10000)
	}
	return fmt.Sprintf("%03d", code%1000)
}

var _ CVVProvider = (*HMACProvider)(nil)
