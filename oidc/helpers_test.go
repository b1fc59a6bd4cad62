package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Test helper to generate RSA key pair
func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

func toJWK(kid string, publicKey *rsa.PublicKey) JWK {
	return JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
	}
}

// mockIDP serves a discovery document and a key set
type mockIDP struct {
	server *httptest.Server

	mu      sync.Mutex
	issuer  string
	keys    []JWK
	failing bool
	delay   time.Duration

	discoveryHits atomic.Int32
	jwksHits      atomic.Int32
}

func newMockIDP(t *testing.T) *mockIDP {
	t.Helper()
	idp := &mockIDP{}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		idp.discoveryHits.Add(1)
		if !idp.wait(w, r) {
			return
		}
		idp.mu.Lock()
		doc := DiscoveryDocument{Issuer: idp.issuer, JWKSURI: idp.server.URL + "/jwks"}
		idp.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		idp.jwksHits.Add(1)
		if !idp.wait(w, r) {
			return
		}
		idp.mu.Lock()
		set := KeySet{Keys: append([]JWK(nil), idp.keys...)}
		idp.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})

	idp.server = httptest.NewServer(mux)
	idp.issuer = idp.server.URL + "/realm"
	t.Cleanup(idp.server.Close)

	return idp
}

// wait applies the configured delay or failure; it reports whether the
// handler should write a normal response
func (m *mockIDP) wait(w http.ResponseWriter, r *http.Request) bool {
	m.mu.Lock()
	failing, delay := m.failing, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return false
		}
	}
	if failing {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (m *mockIDP) discoveryURL() string {
	return m.server.URL + "/.well-known/openid-configuration"
}

func (m *mockIDP) setIssuer(issuer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issuer = issuer
}

func (m *mockIDP) setKeys(keys ...JWK) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = keys
}

func (m *mockIDP) setFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *mockIDP) setDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

func (m *mockIDP) hits() int32 {
	return m.discoveryHits.Load() + m.jwksHits.Load()
}

// Test helper to create a signed token
func createTestToken(t *testing.T, privateKey *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}

	tokenString, err := token.SignedString(privateKey)
	require.NoError(t, err)

	return tokenString
}

func standardClaims(issuer, audience, subject string) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": subject,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return claims
}

// clock is a settable time source for cache tests
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now()}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
