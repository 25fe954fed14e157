// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MediaRoute is the path prefix under which signed blobs are served.
const MediaRoute = "/api/v1/media/"

var (
	// ErrInvalidToken is returned when a media token does not verify.
	ErrInvalidToken = errors.New("invalid media token")

	// ErrTokenExpired is returned when a media token is past its expiry.
	ErrTokenExpired = errors.New("media token expired")

	// ErrKeyMismatch is returned when a valid token was issued for another key.
	ErrKeyMismatch = errors.New("media token does not match key")
)

// MediaClaims are the claims of a media token. The token grants read access
// to exactly one blob key until it expires.
type MediaClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// URLSigner turns blob keys into time-bounded download URLs and verifies the
// tokens in them.
type URLSigner struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewURLSigner creates a signer. baseURL is the externally reachable origin
// of the API, for example https://sonograph.example.com.
func NewURLSigner(secret, baseURL string, ttl time.Duration) (*URLSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required but was empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("url ttl must be positive, got %s", ttl)
	}
	return &URLSigner{
		secret:  []byte(secret),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// URL signs key with the default lifetime.
func (s *URLSigner) URL(key string) (string, error) {
	return s.Sign(key, s.ttl)
}

// Sign returns a download URL for key that is valid for ttl.
func (s *URLSigner) Sign(key string, ttl time.Duration) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}

	now := s.now()
	claims := &MediaClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return s.baseURL + MediaRoute + escapeKey(key) + "?token=" + url.QueryEscape(signed), nil
}

// Verify checks that token is a valid, unexpired media token for key.
func (s *URLSigner) Verify(key, token string) error {
	parsed, err := jwt.ParseWithClaims(token, &MediaClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*MediaClaims)
	if !ok || !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.Key != key {
		return ErrKeyMismatch
	}
	return nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
