// Package auth mints and validates the opaque authenticated-caller
// tokens spec §1 calls for ("cookie and JWT handling beyond an opaque
// authenticated caller" is explicitly out of scope — there is no user
// store, role, or permission model behind this). Grounded on the
// teacher's internal/core/auth.Service: golang-jwt/jwt/v5 claims
// signed with an HMAC key, minus everything OAuth/SAML/RBAC-shaped.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/config"
)

// Claims identifies the caller a token was minted for. There are no
// roles or permissions — every authenticated caller has the same
// standing, matching the core's lack of an authorization model.
type Claims struct {
	jwt.RegisteredClaims
}

// Service mints and validates session tokens.
type Service interface {
	GenerateToken(callerID string) (string, error)
	ValidateToken(tokenString string) (callerID string, err error)
}

type service struct {
	mu         sync.Mutex
	signingKey []byte
	ttl        time.Duration
}

// NewService builds a Service. When cfg.Auth.JWTSecret is empty a
// random per-process key is generated instead — tokens minted by one
// process instance are never valid against another, which is fine
// since there is no durable credential store to keep them consistent
// with anyway.
func NewService(cfg *config.Config) (Service, error) {
	ttl := time.Duration(cfg.Auth.TokenTTLSecs) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	key := []byte(cfg.Auth.JWTSecret)
	if len(key) == 0 {
		random := make([]byte, 32)
		if _, err := rand.Read(random); err != nil {
			return nil, apperror.New("auth.NewService", apperror.KindInternal, fmt.Errorf("generating signing key: %w", err))
		}
		key = []byte(base64.URLEncoding.EncodeToString(random))
	}

	return &service{signingKey: key, ttl: ttl}, nil
}

func (s *service) GenerateToken(callerID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   callerID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", apperror.New("auth.GenerateToken", apperror.KindInternal, err)
	}
	return signed, nil
}

func (s *service) ValidateToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return "", apperror.Newf("auth.ValidateToken", apperror.KindUnauthenticated, "invalid or expired token")
	}
	return claims.Subject, nil
}
