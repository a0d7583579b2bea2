package cardgen

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerator_Next(t *testing.T) {
	gen, err := NewGenerator("421234", 16)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		pan, err := gen.Next()
		require.NoError(t, err)
		require.Len(t, pan, 16)
		require.True(t, strings.HasPrefix(pan, "421234"))
		require.NoError(t, ValidatePAN(pan))
	}
}

func TestGenerator_SkipsBiasedBytes(t *testing.T) {
	gen, err := NewGenerator("421234", 16)
	require.NoError(t, err)
	// 255 and 250 are discarded, the remaining bytes map to their last digit
	gen.rand = bytes.NewReader([]byte{255, 250, 1, 2, 3, 4, 5, 6, 7, 8, 9})

	pan, err := gen.Next()
	require.NoError(t, err)
	require.Equal(t, "421234123456789", pan[:15])
	require.NoError(t, ValidatePAN(pan))
}

func TestNewGenerator_Rejects(t *testing.T) {
	for _, tc := range []struct {
		bin    string
		length int
	}{
		{"42", 16},
		{"42123x", 16},
		{"421234", 12},
		{"421234", 20},
	} {
		_, err := NewGenerator(tc.bin, tc.length)
		require.Error(t, err, "%s/%d", tc.bin, tc.length)
	}
}

func TestGenerator_NextUnused(t *testing.T) {
	gen, err := NewGenerator("421234", 16)
	require.NoError(t, err)

	calls := 0
	pan, err := gen.NextUnused(5, func(string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, pan)
	require.Equal(t, 3, calls)

	_, err = gen.NextUnused(2, func(string) (bool, error) { return true, nil })
	require.ErrorIs(t, err, ErrExhausted)

	boom := errors.New("boom")
	_, err = gen.NextUnused(2, func(string) (bool, error) { return false, boom })
	require.ErrorIs(t, err, boom)
}

func TestValidatePAN(t *testing.T) {
	require.NoError(t, ValidatePAN("4111111111111111"))
	require.Error(t, ValidatePAN("4111111111111112"))
	require.Error(t, ValidatePAN("41111111"))
	require.Error(t, ValidatePAN("4111-1111-1111-1111"))
	require.Error(t, ValidatePAN(""))
}

func TestMaskPAN(t *testing.T) {
	require.Equal(t, "411111******1111", MaskPAN("4111 1111 1111 1111"))
	require.Equal(t, "****", MaskPAN("1234"))
	require.Equal(t, "", MaskPAN(""))
	require.Equal(t, "1111", LastN("4111111111111111", 4))
}

func TestFingerprint(t *testing.T) {
	key := []byte("pepper")
	require.Equal(t, Fingerprint("4111111111111111", key), Fingerprint("4111 1111-1111 1111", key))
	require.NotEqual(t, Fingerprint("4111111111111111", key), Fingerprint("4111111111111111", []byte("other")))
	require.Len(t, Fingerprint("4111111111111111", key), 32)
}
