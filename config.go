package authcore

import (
	"errors"
	"time"

	"github.com/nextrealm/authcore/password"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Token       TokenConfig
	Lockout     LockoutConfig
	Password    password.Params
	Keys        KeyConfig
	Collections CollectionsConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls token lifetimes and validation leeway.
type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// ClockSkew is tolerated in both directions when validating exp/iat.
	ClockSkew time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the failed-login lockout policy. After MaxAttempts
// consecutive failures the account locks for Duration and then unlocks on the
// next login attempt.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

/*
====================================
SIGNING KEY CONFIG
====================================
*/

// KeyConfig controls the signing-key lifecycle.
type KeyConfig struct {
	RSABits   int
	ScanLimit int
	// CacheTTL bounds how long a loaded key set is served without re-reading
	// the store. Zero keeps it for the process lifetime until Rotate or
	// Invalidate.
	CacheTTL time.Duration
}

/*
====================================
COLLECTIONS
====================================
*/

// CollectionsConfig names the document collections (tables) the engine
// writes. Main holds credentials, email lookups, and refresh families;
// SigningKeys holds the key records.
type CollectionsConfig struct {
	Main        string
	SigningKeys string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by authcore APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; dropped events are counted and
	// reported via Engine.AuditDropped.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by authcore APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. Callers tweak fields and
// pass the result to Builder.WithConfig.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  6 * time.Hour,
			RefreshTTL: 60 * 24 * time.Hour,
			ClockSkew:  30 * time.Second,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		Password: password.DefaultParams(),
		Keys: KeyConfig{
			RSABits:   2048,
			ScanLimit: 10,
		},
		Collections: CollectionsConfig{
			Main:        "auth-main",
			SigningKeys: "signing-keys",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when the configuration is internally
// inconsistent or would weaken the engine's security posture.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token.AccessTTL must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token.RefreshTTL must exceed Token.AccessTTL")
	}
	if c.Token.ClockSkew < 0 {
		return errors.New("Token.ClockSkew must not be negative")
	}
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout.MaxAttempts must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout.Duration must be positive")
	}
	if c.Keys.RSABits < 2048 {
		return errors.New("Keys.RSABits must be >= 2048")
	}
	if c.Keys.ScanLimit < 1 {
		return errors.New("Keys.ScanLimit must be >= 1")
	}
	if c.Keys.CacheTTL < 0 {
		return errors.New("Keys.CacheTTL must not be negative")
	}
	if c.Collections.Main == "" || c.Collections.SigningKeys == "" {
		return errors.New("Collections must name both document collections")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("Audit.BufferSize must be >= 1 when audit is enabled")
	}
	return nil
}
