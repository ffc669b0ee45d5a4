// Package auth is a verification-only seam: it trusts an upstream service
// to issue access tokens and exists here only to parse the authenticated
// user identity out of a bearer token already presented to this bridge.
// Token issuance, account storage, and the OIDC/local login flows that
// produce these tokens are out of scope for this module (spec §1).
package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the identity fields this bridge actually consumes out of an
// access token: which user owns a gid, nothing more.
type Claims struct {
	jwt.RegisteredClaims

	// UserID, read from the "uid" claim, is the user this bridge scopes
	// history rows to.
	UserID string `json:"uid"`
}

// JWTManager verifies RS256-signed access tokens against a public key.
// It never signs tokens — this module does not issue them.
type JWTManager struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewJWTManagerFromPublicKeyFile loads a PEM-encoded RSA public key used to
// verify tokens issued by the upstream auth service.
func NewJWTManagerFromPublicKeyFile(publicKeyPath, issuer string) (*JWTManager, error) {
	pubBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: reading public key file: %w", err)
	}
	return newJWTManagerFromPEM(pubBytes, issuer)
}

func newJWTManagerFromPEM(publicPEM []byte, issuer string) (*JWTManager, error) {
	pubBlock, _ := pem.Decode(publicPEM)
	if pubBlock == nil {
		return nil, errors.New("auth: failed to decode public key PEM block")
	}

	pubInterface, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parsing public key: %w", err)
	}

	publicKey, ok := pubInterface.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("auth: public key is not an RSA key")
	}

	return &JWTManager{publicKey: publicKey, issuer: issuer}, nil
}

// ValidateAccessToken parses and verifies a JWT string.
//
// Callers should use errors.Is(err, auth.ErrTokenExpired) to distinguish
// expired tokens from tampered/malformed ones.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(t *jwt.Token) (any, error) {
			// Reject tokens signed with anything other than RS256.
			// This prevents the "alg:none" and HMAC confusion attacks.
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
