package utils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/common"
)

// Claims: то, что кладём в токен сессии.
type Claims struct {
	UserID string     `json:"userId"`
	Role   authz.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		leeway: 2 * time.Minute,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	cp := *t
	cp.now = now
	return &cp
}

func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

func (t *TokenIssuer) Issue(userID string, role authz.Role) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("user_id", userID).Wrap(err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry. Only HMAC tokens are accepted.
func (t *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, oops.Code("TOKEN_MISSING").Wrap(common.ErrInvalidToken)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (any, error) {
			// защита: принимаем только HMAC
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(t.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(errors.Join(common.ErrTokenExpired, err))
		}
		return nil, oops.Code("TOKEN_INVALID").Wrap(errors.Join(common.ErrInvalidToken, err))
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "missing claims").Wrap(common.ErrInvalidToken)
	}
	return claims, nil
}

// GenerateNumericCode returns a uniformly random decimal code of n digits.
func GenerateNumericCode(n int) (string, error) {
	if n <= 0 || n > 18 {
		return "", fmt.Errorf("code length must be between 1 and 18, got %d", n)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}
