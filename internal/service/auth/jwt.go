package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/krobus00/realtime-gateway/internal/entity"
)

var ErrMissingSecret = errors.New("jwt secret is required")

// claims the verifier reads itself; they never reach Identity.Claims
var reservedClaims = map[string]struct{}{
	"iss":    {},
	"sub":    {},
	"aud":    {},
	"exp":    {},
	"nbf":    {},
	"iat":    {},
	"jti":    {},
	"user":   {},
	"tenant": {},
	"extras": {},
}

// TokenClaims is the payload expected in gateway tokens.
type TokenClaims struct {
	UserID string         `json:"user"`
	Tenant string         `json:"tenant,omitempty"`
	Extras map[string]any `json:"extras,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HMAC signed tokens locally.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
	}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (VerifyResult, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return VerifyResult{Reason: err.Error()}, nil
	}
	if !token.Valid {
		return VerifyResult{Reason: "invalid token"}, nil
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return VerifyResult{Reason: "token has no user claim"}, nil
	}

	return VerifyResult{
		Valid: true,
		Identity: entity.Identity{
			UserID: userID,
			Tenant: claims.Tenant,
			Claims: customClaims(tokenString, claims.Extras),
		},
	}, nil
}

// customClaims collects the non registered top level claims of a verified
// token. Keys under extras win over top level keys of the same name.
func customClaims(tokenString string, extras map[string]any) map[string]any {
	out := make(map[string]any)

	all := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, all); err == nil {
		for k, v := range all {
			if _, ok := reservedClaims[k]; ok {
				continue
			}
			out[k] = v
		}
	}
	for k, v := range extras {
		out[k] = v
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Sign issues an HS256 token for userID that the verifier accepts.
func (v *JWTVerifier) Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
