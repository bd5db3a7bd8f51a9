package auth

import (
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := NewTOTPManager(key, "VetConnect")
	require.NoError(t, err)
	return tm
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestTOTPManager_NewTOTPManager_InvalidKeyLength(t *testing.T) {
	for _, length := range []int{0, 16, 24, 31, 33, 64} {
		tm, err := NewTOTPManager(make([]byte, length), "VetConnect")
		assert.Error(t, err)
		assert.Nil(t, tm)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

func TestTOTPManager_Enroll(t *testing.T) {
	tm := newTestTOTPManager(t)

	enrollment, err := tm.Enroll("vet@example.test")
	require.NoError(t, err)

	assert.Len(t, enrollment.SecretNonce, 12)
	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.URI, "otpauth://totp/"))
	assert.Contains(t, enrollment.URI, "issuer=VetConnect")
	assert.True(t, strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,"))

	plain, err := tm.DecryptSecret(enrollment.SecretEncrypted, enrollment.SecretNonce)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Secret, string(plain))
}

func TestTOTPManager_DecryptSecret_Tampered(t *testing.T) {
	tm := newTestTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	encrypted[0] ^= 0xFF
	_, err = tm.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
}

func TestTOTPManager_DecryptSecret_WrongKey(t *testing.T) {
	a := newTestTOTPManager(t)
	b := newTestTOTPManager(t)

	encrypted, nonce, err := a.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	_, err = b.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
}

func TestTOTPManager_ValidateTOTP(t *testing.T) {
	tm := newTestTOTPManager(t)
	enrollment, err := tm.Enroll("vet@example.test")
	require.NoError(t, err)
	secret, err := tm.DecryptSecret(enrollment.SecretEncrypted, enrollment.SecretNonce)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	tm.now = func() time.Time { return now }

	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"current step", codeAt(t, enrollment.Secret, now), true},
		{"previous step", codeAt(t, enrollment.Secret, now.Add(-30*time.Second)), true},
		{"next step", codeAt(t, enrollment.Secret, now.Add(30*time.Second)), true},
		{"two steps old", codeAt(t, enrollment.Secret, now.Add(-90*time.Second)), false},
		{"garbage", "000000x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := tm.ValidateTOTP(secret, tt.code, nil)
			assert.NoError(t, err)
			assert.Equal(t, tt.valid, valid)
		})
	}
}

func TestTOTPManager_ValidateTOTP_Replay(t *testing.T) {
	tm := newTestTOTPManager(t)
	enrollment, err := tm.Enroll("vet@example.test")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	tm.now = func() time.Time { return now }
	code := codeAt(t, enrollment.Secret, now)

	recent := now.Add(-20 * time.Second)
	valid, err := tm.ValidateTOTP([]byte(enrollment.Secret), code, &recent)
	assert.False(t, valid)
	assert.ErrorIs(t, err, models.ErrMFACodeReplayed)

	old := now.Add(-5 * time.Minute)
	valid, err = tm.ValidateTOTP([]byte(enrollment.Secret), code, &old)
	assert.NoError(t, err)
	assert.True(t, valid)
}
