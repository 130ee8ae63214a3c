package clientauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRevocationChecker struct {
	revoked map[string]bool
	err     error
}

func (f fakeRevocationChecker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[tokenID], nil
}

func TestConfigValidateToken_Success(t *testing.T) {
	cfg := Config{
		SigningKey: []byte("test-signing-key-1234567890123456"),
		Issuer:     "outcome-sim",
		ExpiresIn:  time.Hour,
	}

	token, _, err := GenerateToken(cfg, "c-1")
	require.NoError(t, err)

	claims, err := cfg.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "c-1", claims.ClientID)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.NotBefore)
}

func TestConfigValidateToken_RejectsInvalidIssuer(t *testing.T) {
	issuerCfg := Config{
		SigningKey: []byte("issuer-key-123456789012345678901234"),
		Issuer:     "outcome-sim",
		ExpiresIn:  time.Hour,
	}
	token, _, err := GenerateToken(issuerCfg, "c-1")
	require.NoError(t, err)

	validatorCfg := Config{
		SigningKey: issuerCfg.SigningKey,
		Issuer:     "other-issuer",
	}
	_, err = validatorCfg.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestConfigValidateToken_SupportsVerificationKeyRotation(t *testing.T) {
	oldKey := []byte("old-key-123456789012345678901234567890")
	newKey := []byte("new-key-123456789012345678901234567890")

	token, _, err := GenerateToken(Config{
		SigningKey: oldKey,
		Issuer:     "outcome-sim",
		ExpiresIn:  time.Hour,
	}, "c-1")
	require.NoError(t, err)

	claims, err := Config{
		SigningKey:       newKey,
		VerificationKeys: [][]byte{oldKey},
		Issuer:           "outcome-sim",
	}.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "c-1", claims.ClientID)
}

func TestConfigValidateToken_RejectsNoneSigningMethod(t *testing.T) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, ClientClaims{
		ClientID: "c-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "outcome-sim",
			Subject:   "c-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Config{
		SigningKey: []byte("signing-key-123456789012345678901234"),
		Issuer:     "outcome-sim",
	}.ValidateToken(context.Background(), tokenString)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestConfigValidateToken_RevocationCheck(t *testing.T) {
	cfg := Config{
		SigningKey: []byte("revocation-key-1234567890123456789012"),
		Issuer:     "outcome-sim",
		ExpiresIn:  time.Hour,
	}
	token, _, err := GenerateToken(cfg, "c-1")
	require.NoError(t, err)

	claims, err := cfg.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	require.NotEmpty(t, claims.ID)

	_, err = Config{
		SigningKey: cfg.SigningKey,
		Issuer:     "outcome-sim",
		RevocationChecker: fakeRevocationChecker{
			revoked: map[string]bool{claims.ID: true},
		},
	}.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestConfigValidateToken_RequiresSigningKey(t *testing.T) {
	token, _, err := GenerateToken(Config{
		SigningKey: []byte("key-to-sign-valid-token-1234567890123456"),
		Issuer:     "outcome-sim",
		ExpiresIn:  time.Hour,
	}, "c-1")
	require.NoError(t, err)

	_, err = Config{Issuer: "outcome-sim"}.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenUnverifiable)
	assert.ErrorIs(t, err, ErrSigningKeyMissing)
}

func TestConfigValidateToken_RevocationCheckerError(t *testing.T) {
	cfg := Config{
		SigningKey: []byte("revocation-error-key-1234567890123456"),
		Issuer:     "outcome-sim",
		ExpiresIn:  time.Hour,
	}
	token, _, err := GenerateToken(cfg, "c-1")
	require.NoError(t, err)

	_, err = Config{
		SigningKey: cfg.SigningKey,
		Issuer:     cfg.Issuer,
		RevocationChecker: fakeRevocationChecker{
			err: errors.New("db down"),
		},
	}.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check token revocation")
}

func TestConfig_Authenticate(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	cfg := Config{AuthPairs: map[string]string{"alice": hash}}

	require.NoError(t, cfg.Authenticate("alice", "correct-horse"))

	err = cfg.Authenticate("alice", "wrong")
	require.ErrorIs(t, err, ErrWrongPassword)

	err = cfg.Authenticate("bob", "anything")
	require.ErrorIs(t, err, ErrUnknownClient)
}
