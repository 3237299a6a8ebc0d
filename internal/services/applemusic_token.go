package services

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DeveloperTokenTTL is the lifetime of a signed developer token, just under Apple's six month maximum.
const DeveloperTokenTTL = 180*24*time.Hour - time.Hour

// LoadPrivateKey reads the PKCS#8 PEM MusicKit key downloaded from the Apple developer portal.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: apple music private_key_path is not configured", shared.ErrMissingCredentials)
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil || len(block.Bytes) == 0 {
		return nil, fmt.Errorf("%w: invalid PEM data for private key", shared.ErrInvalidCredentials)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %w", shared.ErrInvalidCredentials, err)
	}

	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not an ECDSA key", shared.ErrInvalidCredentials)
	}
	return ecKey, nil
}

// DeveloperToken signs an ES256 Apple Music developer token issued by teamID under keyID.
func DeveloperToken(teamID, keyID string, key *ecdsa.PrivateKey, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if teamID == "" || keyID == "" {
		return "", time.Time{}, fmt.Errorf("%w: apple music team_id and key_id are required", shared.ErrMissingCredentials)
	}
	if key == nil {
		return "", time.Time{}, errors.New("apple music private key is required")
	}

	now = now.UTC()
	exp := now.Add(ttl)

	unsignedToken, err := jwt.NewBuilder().
		Issuer(teamID).
		IssuedAt(now).
		Expiration(exp).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, keyID); err != nil {
		return "", time.Time{}, err
	}

	signed, err := jwt.Sign(unsignedToken, jwt.WithKey(jwa.ES256, key, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing developer token: %w", err)
	}
	return string(signed), exp, nil
}
