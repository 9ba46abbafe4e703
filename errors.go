package authcore

import (
	"errors"

	"github.com/nextrealm/authcore/envelope"
)

var (
	// ErrInvalidEmail is an exported constant or variable used by the authentication engine.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword is an exported constant or variable used by the authentication engine.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrEmailTaken is an exported constant or variable used by the authentication engine.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidToken is an exported constant or variable used by the authentication engine.
	ErrInvalidToken = errors.New("invalid refresh token")
	// ErrTokenReuse is an exported constant or variable used by the authentication engine.
	ErrTokenReuse = errors.New("refresh token reuse detected")
	// ErrInvalidAccessToken is an exported constant or variable used by the authentication engine.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// CodeFor maps an engine error to its stable wire code. Unrecognized errors
// map to "internal_error" so storage and crypto failures never leak detail to
// clients.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrTokenReuse):
		return "token_reuse_detected"
	case errors.Is(err, ErrInvalidAccessToken):
		return "invalid_access_token"
	case errors.Is(err, ErrEngineNotReady):
		return "not_ready"
	case errors.Is(err, envelope.ErrDecrypt):
		return "decryption_error"
	default:
		return "internal_error"
	}
}
