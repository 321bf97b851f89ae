package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "gateway-test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims TokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("", "")
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestJWTVerifier_Verify(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "trading-auth")
	require.NoError(t, err)
	now := time.Now()

	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), TokenClaims{
		UserID: "U1",
		Tenant: "acme",
		Extras: map[string]any{"role": "trader"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "trading-auth",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	result, err := verifier.Verify(context.Background(), valid)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "U1", result.Identity.UserID)
	require.Equal(t, "acme", result.Identity.Tenant)
	require.Equal(t, "trader", result.Identity.Claims["role"])

	subjectOnly := signToken(t, jwt.SigningMethodHS512, []byte(testSecret), TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "trading-auth", Subject: "U2"},
	})
	result, err = verifier.Verify(context.Background(), subjectOnly)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "U2", result.Identity.UserID)
}

func TestJWTVerifier_TopLevelCustomClaims(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "trading-auth")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    "trading-auth",
		"sub":    "U3",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"role":   "admin",
		"desk":   "spot",
		"extras": map[string]any{"desk": "futures"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	result, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "U3", result.Identity.UserID)
	require.Equal(t, "admin", result.Identity.Claims["role"])
	require.Equal(t, "futures", result.Identity.Claims["desk"])
	require.NotContains(t, result.Identity.Claims, "iss")
	require.NotContains(t, result.Identity.Claims, "exp")
	require.NotContains(t, result.Identity.Claims, "extras")

	plain, err := verifier.Sign("U4", time.Minute)
	require.NoError(t, err)
	result, err = verifier.Verify(context.Background(), plain)
	require.NoError(t, err)
	require.Nil(t, result.Identity.Claims)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "trading-auth")
	require.NoError(t, err)
	now := time.Now()

	tests := map[string]string{
		"expired": signToken(t, jwt.SigningMethodHS256, []byte(testSecret), TokenClaims{
			UserID: "U1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "trading-auth",
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			},
		}),
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), TokenClaims{
			UserID:           "U1",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "trading-auth"},
		}),
		"wrong issuer": signToken(t, jwt.SigningMethodHS256, []byte(testSecret), TokenClaims{
			UserID:           "U1",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
		}),
		"no user": signToken(t, jwt.SigningMethodHS256, []byte(testSecret), TokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "trading-auth"},
		}),
		"unsigned": signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, TokenClaims{
			UserID:           "U1",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "trading-auth"},
		}),
		"garbage": "not-a-token",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := verifier.Verify(context.Background(), token)
			require.NoError(t, err)
			require.False(t, result.Valid)
			require.NotEmpty(t, result.Reason)
		})
	}
}

func TestJWTVerifier_SignRoundTrip(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "trading-auth")
	require.NoError(t, err)

	token, err := verifier.Sign("U9", time.Minute)
	require.NoError(t, err)

	result, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "U9", result.Identity.UserID)

	expired, err := verifier.Sign("U9", -time.Minute)
	require.NoError(t, err)
	result, err = verifier.Verify(context.Background(), expired)
	require.NoError(t, err)
	require.False(t, result.Valid)
}
