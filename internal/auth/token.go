package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuerName   = "jobtracker"
	defaultAudienceName = "jobtracker-api"
	defaultAccessTTL    = 30 * time.Minute

	refreshTokenBytes = 64
)

// AccessClaims are the claims carried by a signed access token.
type AccessClaims struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies HS256 access tokens. It never consults the
// revocation list; that check belongs to the middleware layered on top.
type Issuer struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
}

// NewIssuer rejects an empty secret outright so the process cannot start
// signing tokens with a weak default.
func NewIssuer(secret, issuer, audience string, accessTTL time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt signing secret is required")
	}
	if issuer == "" {
		issuer = defaultIssuerName
	}
	if audience == "" {
		audience = defaultAudienceName
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}

	return &Issuer{
		secret:    []byte(secret),
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
	}, nil
}

func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func (i *Issuer) IssueAccess(user User) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return encoded, nil
}

// VerifyAccess checks signature, issuer, audience and expiry with zero
// clock-skew tolerance.
func (i *Issuer) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

// NewRefreshToken returns an opaque token with 512 bits of randomness. It
// encodes no claims and must be resolved through the session store.
func NewRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
