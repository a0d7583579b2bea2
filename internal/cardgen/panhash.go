package cardgen

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Fingerprint is a keyed hash of the normalized PAN, stable enough to
// enforce uniqueness without comparing raw numbers.
func Fingerprint(pan string, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(NormalizePAN(pan)))
	return mac.Sum(nil)
}
