package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/dataset-search-api/internal/observability"
	"go.uber.org/zap"
)

// Config holds configuration for Verifier
type Config struct {
	AuthConfig AuthConfig
	// Leeway is the clock skew tolerated on exp, nbf and iat
	Leeway  time.Duration
	Metrics *observability.Metrics
}

// Verifier validates RS256 bearer tokens against the identity provider
// selected by the token's audience or subject
type Verifier struct {
	authConfig AuthConfig
	cache      *KeySetCache
	leeway     time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger

	// Cache for parsed public keys, keyed by jwks_uri and kid
	keyCache   map[string]cachedKey
	keyCacheMu sync.RWMutex
}

type cachedKey struct {
	key *rsa.PublicKey
	// lastUpdate of the key set entry the key was derived from
	lastUpdate time.Time
}

// NewVerifier creates a new token verifier backed by cache
func NewVerifier(config Config, cache *KeySetCache, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Verifier{
		authConfig: config.AuthConfig,
		cache:      cache,
		leeway:     config.Leeway,
		metrics:    config.Metrics,
		logger:     logger,
		keyCache:   make(map[string]cachedKey),
	}
}

// Verify validates tokenString and returns its verified claims.
// explicitVO, when non-empty, overrides the VO configured for the token's
// audience. Every error wraps ErrTokenInvalid together with the reason.
func (v *Verifier) Verify(ctx context.Context, tokenString, explicitVO string) (*Claims, error) {
	claims, err := v.verify(ctx, tokenString, explicitVO)
	if err != nil {
		v.metrics.RecordVerification(failureReason(err))
		v.logger.Warn("token verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	v.metrics.RecordVerification("success")
	v.logger.Debug("token verified",
		zap.String("sub", claims.Subject),
		zap.String("iss", claims.Issuer),
		zap.String("vo", claims.VO))

	return claims, nil
}

func (v *Verifier) verify(ctx context.Context, tokenString, explicitVO string) (*Claims, error) {
	unverified, err := inspectUnverified(tokenString)
	if err != nil {
		return nil, err
	}

	confKey, audience, err := v.selectConfig(unverified)
	if err != nil {
		return nil, err
	}
	provider := v.authConfig[confKey]

	if unverified.KeyID == "" {
		return nil, fmt.Errorf("%w: cannot extract kid from headers", ErrMissingKeyID)
	}

	var discovery DiscoveryDocument
	if err := v.cache.GetJSON(ctx, provider.OIDCConfigURL, &discovery); err != nil {
		return nil, err
	}
	if discovery.Issuer == "" || discovery.JWKSURI == "" {
		return nil, fmt.Errorf("%w: discovery document at %s lacks issuer or jwks_uri", ErrFetch, provider.OIDCConfigURL)
	}

	publicKey, err := v.publicKey(ctx, discovery.JWKSURI, unverified.KeyID)
	if err != nil {
		return nil, err
	}

	issuer := expectedIssuer(unverified.Issuer, discovery.Issuer)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	payload := jwt.MapClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, payload, func(*jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}

	vo := explicitVO
	if vo == "" {
		vo = provider.VO
	}

	return newClaims(payload, vo), nil
}

// selectConfig picks the auth config key: the first audience that is
// configured, else the subject. It also returns the audience to enforce.
func (v *Verifier) selectConfig(t *unverifiedToken) (string, string, error) {
	for _, aud := range t.Audience {
		if _, ok := v.authConfig[aud]; ok {
			return aud, aud, nil
		}
	}

	audience := ""
	if len(t.Audience) > 0 {
		audience = t.Audience[0]
	}

	if _, ok := v.authConfig[t.Subject]; ok && t.Subject != "" {
		return t.Subject, audience, nil
	}

	return "", "", fmt.Errorf("%w: aud=%v sub=%q", ErrUnknownAudience, t.Audience, t.Subject)
}

// publicKey resolves kid in the key set at jwksURI. Derived keys are reused
// only while the key set they came from is still the cached one.
func (v *Verifier) publicKey(ctx context.Context, jwksURI, kid string) (*rsa.PublicKey, error) {
	entry, err := v.cache.Get(ctx, jwksURI)
	if err != nil {
		return nil, err
	}

	cacheKey := jwksURI + "#" + kid

	v.keyCacheMu.RLock()
	cached, ok := v.keyCache[cacheKey]
	v.keyCacheMu.RUnlock()
	if ok && cached.lastUpdate.Equal(entry.LastUpdate) {
		return cached.key, nil
	}

	var keySet KeySet
	if err := json.Unmarshal(entry.Data, &keySet); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, jwksURI, err)
	}

	jwk, err := FindKey(kid, &keySet)
	if err != nil {
		return nil, err
	}

	publicKey, err := jwk.PublicKey()
	if err != nil {
		return nil, err
	}

	v.keyCacheMu.Lock()
	v.keyCache[cacheKey] = cachedKey{key: publicKey, lastUpdate: entry.LastUpdate}
	v.keyCacheMu.Unlock()

	return publicKey, nil
}

// InvalidateKeys clears the derived public key cache
func (v *Verifier) InvalidateKeys() {
	v.keyCacheMu.Lock()
	defer v.keyCacheMu.Unlock()
	v.keyCache = make(map[string]cachedKey)
}

// expectedIssuer returns the issuer the token must carry. Some providers
// issue access tokens whose iss lacks the trailing separator of the
// canonical issuer; a token iss that is a strict prefix of it is accepted.
func expectedIssuer(tokenIssuer, discoveryIssuer string) string {
	if tokenIssuer != "" && tokenIssuer != discoveryIssuer && strings.HasPrefix(discoveryIssuer, tokenIssuer) {
		return tokenIssuer
	}
	return discoveryIssuer
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrTokenNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrAudienceMismatch, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

func failureReason(err error) string {
	reasons := []struct {
		err    error
		reason string
	}{
		{ErrMissingKeyID, "missing_key_id"},
		{ErrUnknownAudience, "unknown_audience"},
		{ErrFetch, "fetch_error"},
		{ErrKeyNotFound, "key_not_found"},
		{ErrMalformedKey, "malformed_key"},
		{ErrInvalidSignature, "invalid_signature"},
		{ErrTokenExpired, "expired"},
		{ErrTokenNotYetValid, "not_yet_valid"},
		{ErrAudienceMismatch, "audience_mismatch"},
		{ErrIssuerMismatch, "issuer_mismatch"},
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "malformed_token"
}
