package oidc

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProviderConfig selects the identity provider and tenant for one audience
// or subject
type ProviderConfig struct {
	OIDCConfigURL string `yaml:"oidc_config_url" json:"oidc_config_url" validate:"required,url"`
	VO            string `yaml:"vo" json:"vo" validate:"required"`
}

// AuthConfig maps an audience (or, for access tokens, a subject) to its
// provider configuration. It is loaded once and never mutated afterwards.
type AuthConfig map[string]ProviderConfig

// DiscoveryDocument is the subset of the OpenID provider metadata we use
type DiscoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// Claims represents a verified claim set
type Claims struct {
	Subject           string
	Issuer            string
	Audience          []string
	Groups            []string
	Email             string
	PreferredUsername string
	ExpiresAt         time.Time
	VO                string

	// Raw is the full verified payload, including the injected "vo"
	Raw map[string]interface{}
}

// HasGroup reports whether the claims carry the given group
func (c *Claims) HasGroup(group string) bool {
	if c == nil {
		return false
	}
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// unverifiedToken is what we are allowed to read from a token before its
// signature has been checked: only enough to pick a provider and a key
type unverifiedToken struct {
	Audience []string
	Subject  string
	Issuer   string
	KeyID    string
}

func inspectUnverified(tokenString string) (*unverifiedToken, error) {
	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("%w: aud: %v", ErrMalformedToken, err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: sub: %v", ErrMalformedToken, err)
	}
	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, fmt.Errorf("%w: iss: %v", ErrMalformedToken, err)
	}

	kid, _ := token.Header["kid"].(string)

	return &unverifiedToken{
		Audience: aud,
		Subject:  sub,
		Issuer:   iss,
		KeyID:    kid,
	}, nil
}

// newClaims builds Claims from a verified payload
func newClaims(payload jwt.MapClaims, vo string) *Claims {
	raw := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		raw[k] = v
	}
	raw["vo"] = vo

	claims := &Claims{
		Groups:            stringSlice(payload["groups"]),
		Email:             stringValue(payload["email"]),
		PreferredUsername: stringValue(payload["preferred_username"]),
		VO:                vo,
		Raw:               raw,
	}
	claims.Subject, _ = payload.GetSubject()
	claims.Issuer, _ = payload.GetIssuer()
	claims.Audience, _ = payload.GetAudience()
	if exp, err := payload.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

// stringSlice accepts a JSON array of strings or a single string
func stringSlice(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
