package idp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/benchboard/internal/errs"
)

// Principal is the verified subject of an assertion.
type Principal struct {
	Subject string
	Email   string
	Admin   bool
}

// Verifier validates RS256 assertions against keys from a KeySource.
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
	admins   map[string]struct{}
}

// NewVerifier constructs a Verifier. Empty issuer or audience disables that check.
// adminEmails grant admin rights when the assertion carries a verified matching email.
func NewVerifier(keys KeySource, issuer, audience string, adminEmails []string) *Verifier {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Verifier{keys: keys, issuer: issuer, audience: audience, admins: admins}
}

// Verify parses and validates raw. Any failure is reported as errs.ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, errs.ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, strings.TrimSpace(kid))
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}

	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return Principal{}, fmt.Errorf("%w: assertion missing sub", errs.ErrUnauthorized)
	}
	email, _ := claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	verified, _ := claims["email_verified"].(bool)

	p := Principal{Subject: sub, Email: email}
	if _, ok := v.admins[email]; ok && email != "" && verified {
		p.Admin = true
	}
	return p, nil
}
