package oidc

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// KeySet represents the JSON Web Key Set published at jwks_uri
type KeySet struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// FindKey returns the key whose kid matches
func FindKey(kid string, keySet *KeySet) (*JWK, error) {
	if keySet != nil {
		for i := range keySet.Keys {
			if keySet.Keys[i].Kid == kid {
				return &keySet.Keys[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: kid=%s", ErrKeyNotFound, kid)
}

// PublicKey converts the modulus and exponent of the JWK into an RSA public key
func (k *JWK) PublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "" && k.Kty != "RSA" {
		return nil, fmt.Errorf("%w: unsupported key type %q", ErrMalformedKey, k.Kty)
	}

	n, err := decodeBigInt(k.N)
	if err != nil {
		return nil, fmt.Errorf("%w: modulus: %v", ErrMalformedKey, err)
	}
	if n.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero modulus", ErrMalformedKey)
	}

	e, err := decodeBigInt(k.E)
	if err != nil {
		return nil, fmt.Errorf("%w: exponent: %v", ErrMalformedKey, err)
	}
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > int64(^uint32(0)>>1) {
		return nil, fmt.Errorf("%w: exponent out of range", ErrMalformedKey)
	}

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}

// decodeBigInt decodes a base64url value, padded to a multiple of 4, as an
// unsigned big-endian integer
func decodeBigInt(value string) (*big.Int, error) {
	value = strings.TrimRight(value, "=")
	if value == "" {
		return nil, fmt.Errorf("empty value")
	}
	if rem := len(value) % 4; rem != 0 {
		value += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(raw), nil
}
