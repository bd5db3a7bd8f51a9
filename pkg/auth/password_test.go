package auth

import (
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
		reason   string
	}{
		{name: "strong password", password: "Herd$ize42"},
		{name: "symbols and digits", password: "MyP@ssw0rd!"},
		{name: "unicode letters count", password: "Étable#2026x"},
		{name: "too short", password: "Co@1w", wantErr: true, reason: "at least"},
		{name: "too long", password: "Aa1!" + strings.Repeat("x", MaxPasswordLen), wantErr: true, reason: "at most"},
		{name: "no uppercase", password: "goatsheep#12", wantErr: true, reason: "uppercase"},
		{name: "no lowercase", password: "GOATSHEEP#12", wantErr: true, reason: "lowercase"},
		{name: "no digit", password: "GoatSheep#xy", wantErr: true, reason: "digit"},
		{name: "no special character", password: "GoatSheep123", wantErr: true, reason: "special"},
		{name: "common password", password: "Password123!", wantErr: true, reason: "too common"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			// Callers only ever see the generic text
			assert.Equal(t, "invalid password", err.Error())

			var pve *PasswordValidationError
			require.True(t, errors.As(err, &pve))
			assert.Contains(t, strings.Join(pve.Errors, "; "), tt.reason)
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPassword("Herd$ize42")
	require.NoError(t, err)
	assert.NotEqual(t, "Herd$ize42", hash)

	assert.NoError(t, ComparePassword(hash, "Herd$ize42"))
	assert.Error(t, ComparePassword(hash, "Herd$ize43"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestGenerateTokenKey(t *testing.T) {
	a, err := GenerateTokenKey()
	require.NoError(t, err)
	b, err := GenerateTokenKey()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, TokenKeyLength)
	assert.NotEqual(t, a, b)
}

func TestGenerateOTPCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := GenerateOTPCode()
		require.NoError(t, err)
		require.Len(t, code, OTPCodeDigits)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', "non-digit in %q", code)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes should vary")
}

func TestHashOTPCode(t *testing.T) {
	hash, err := HashOTPCode("123456")
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hash, "123456"))
	assert.Error(t, ComparePassword(hash, "654321"))
}
