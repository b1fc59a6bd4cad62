package oidc

import "errors"

var (
	// ErrFetch is returned when an identity provider document cannot be
	// fetched or parsed and no previously cached copy exists
	ErrFetch = errors.New("failed to fetch identity provider document")

	// ErrKeyNotFound is returned when no key in the key set matches the token kid
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrMalformedKey is returned when a JWK cannot be turned into an RSA public key
	ErrMalformedKey = errors.New("malformed signing key")

	// ErrUnknownAudience is returned when neither aud nor sub selects an auth config entry
	ErrUnknownAudience = errors.New("unknown audience")

	// ErrMissingKeyID is returned when the token header carries no kid
	ErrMissingKeyID = errors.New("missing key id")

	// ErrTokenInvalid wraps every verification failure
	ErrTokenInvalid = errors.New("invalid token")

	// ErrInvalidSignature is returned when the signature does not verify
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenNotYetValid is returned when nbf or iat lie in the future
	ErrTokenNotYetValid = errors.New("token not yet valid")

	// ErrAudienceMismatch is returned when the token audience is invalid
	ErrAudienceMismatch = errors.New("audience mismatch")

	// ErrIssuerMismatch is returned when the token issuer is invalid
	ErrIssuerMismatch = errors.New("issuer mismatch")

	// ErrMalformedToken is returned when the token cannot be parsed at all
	ErrMalformedToken = errors.New("malformed token")
)
