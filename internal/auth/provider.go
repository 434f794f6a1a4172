package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mirv-rover/relay-core/internal/infrastructure/config"
)

// Provider validates bearer tokens for the two credential spaces.
//
// Operator tokens gate command endpoints on the HTTP API; device tokens
// gate device connections at admit time. The spaces are signed with
// separate secrets, so a device token never passes operator validation
// and vice versa.
type Provider interface {
	ValidateOperatorToken(ctx context.Context, token string) bool
	ValidateDeviceToken(ctx context.Context, token string) bool
}

// JWTProvider validates HS256 signed JWTs.
type JWTProvider struct {
	operatorSecret []byte
	deviceSecret   []byte
	issuer         string
}

// NewJWTProvider creates a provider from the auth configuration.
func NewJWTProvider(cfg config.AuthConfig) *JWTProvider {
	return &JWTProvider{
		operatorSecret: []byte(cfg.OperatorSecret),
		deviceSecret:   []byte(cfg.DeviceSecret),
		issuer:         cfg.Issuer,
	}
}

// ValidateOperatorToken checks a token against the operator secret.
func (p *JWTProvider) ValidateOperatorToken(_ context.Context, token string) bool {
	return p.validate(token, p.operatorSecret)
}

// ValidateDeviceToken checks a token against the device secret.
func (p *JWTProvider) ValidateDeviceToken(_ context.Context, token string) bool {
	return p.validate(token, p.deviceSecret)
}

// validate parses and verifies signature, expiry, and issuer if configured.
func (p *JWTProvider) validate(token string, secret []byte) bool {
	if token == "" {
		return false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)

	return err == nil && parsed.Valid
}
