// Package auth verifies the platform user token attached to every request.
package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication errors.
var (
	ErrMissingToken = errors.New("missing user token")
	ErrInvalidToken = errors.New("invalid user token")
)

// Options configures a Verifier.
type Options struct {
	// Header carrying the token, e.g. x-whop-user-token.
	Header       string
	PublicKeyPEM string
	Issuer       string
	// Audience is the app id the token must be issued for. Empty skips the check.
	Audience string
	// DevUserID is returned for requests without a token header when
	// Production is false.
	DevUserID  string
	Production bool
	Leeway     time.Duration
}

// Identity is what a verified token says about the caller.
type Identity struct {
	UserID   string
	Username string
	Name     string
}

// Claims are the token claims read by the verifier.
type Claims struct {
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks ES256-signed user tokens.
type Verifier struct {
	opts   Options
	key    *ecdsa.PublicKey
	parser *jwt.Parser
}

// NewVerifier creates a verifier. A missing public key is allowed outside
// production; every presented token is then rejected.
func NewVerifier(opts Options) (*Verifier, error) {
	if opts.Header == "" {
		opts.Header = "x-whop-user-token"
	}
	if opts.Leeway == 0 {
		opts.Leeway = 30 * time.Second
	}

	v := &Verifier{opts: opts}

	if strings.TrimSpace(opts.PublicKeyPEM) != "" {
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(opts.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse token public key: %w", err)
		}
		v.key = key
	} else if opts.Production {
		return nil, errors.New("token public key is required in production")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	v.parser = jwt.NewParser(parserOpts...)

	return v, nil
}

// HeaderName returns the header the verifier reads.
func (v *Verifier) HeaderName() string {
	return v.opts.Header
}

// Verify returns the caller identity for the request headers.
func (v *Verifier) Verify(_ context.Context, header http.Header) (*Identity, error) {
	raw := strings.TrimSpace(header.Get(v.opts.Header))
	if raw == "" {
		if !v.opts.Production && v.opts.DevUserID != "" {
			return &Identity{UserID: v.opts.DevUserID}, nil
		}
		return nil, ErrMissingToken
	}
	return v.Parse(raw)
}

// Parse verifies a raw token.
func (v *Verifier) Parse(raw string) (*Identity, error) {
	if v.key == nil {
		return nil, fmt.Errorf("%w: no verification key configured", ErrInvalidToken)
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Name:     claims.Name,
	}, nil
}
