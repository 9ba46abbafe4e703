package authcore

import (
	"context"
	"fmt"

	"github.com/nextrealm/authcore/docstore"
)

// Login verifies the credentials and issues a fresh token pair.
//
// Rejections that happen before a credential record is loaded (malformed or
// unknown email) still burn one Argon2 verification, so response timing does
// not reveal whether an account exists. Lockouts expire lazily: the first
// attempt after the window sees the lock cleared.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (Result, error) {
	if e == nil || e.hasher == nil {
		return Result{}, ErrEngineNotReady
	}

	normalized := normalizeEmail(email)
	if !validEmail(normalized) {
		e.hasher.VerifyDummy()
		return Result{}, e.failLogin(ctx, "", normalized, "malformed_email")
	}

	lookupDoc, found, err := e.store.Get(ctx, e.config.Collections.Main, emailKey(normalized))
	if err != nil {
		return Result{}, fmt.Errorf("authcore: loading email lookup: %w", err)
	}
	if !found {
		e.hasher.VerifyDummy()
		return Result{}, e.failLogin(ctx, "", normalized, "unknown_email")
	}
	lookup, err := docstore.Decode[EmailLookupRecord](lookupDoc)
	if err != nil {
		return Result{}, err
	}

	credDoc, found, err := e.store.Get(ctx, e.config.Collections.Main, credentialKey(lookup.PlayerID))
	if err != nil {
		return Result{}, fmt.Errorf("authcore: loading credential: %w", err)
	}
	if !found {
		e.hasher.VerifyDummy()
		return Result{}, e.failLogin(ctx, lookup.PlayerID, normalized, "missing_credential")
	}
	rec, err := docstore.Decode[CredentialRecord](credDoc)
	if err != nil {
		return Result{}, err
	}

	nowMs := e.nowMilli()
	if rec.locked(nowMs) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, rec.PlayerID, normalized, ErrAccountLocked, nil)
		return Result{}, ErrAccountLocked
	}
	countersDirty := rec.FailedAttempts > 0 || rec.LockedUntil != 0
	if rec.lockExpired(nowMs) {
		rec.FailedAttempts = 0
		rec.LockedUntil = 0
		rec.Status = CredentialStatusActive
	}

	match, err := e.hasher.Verify(plaintext, rec.PasswordHash)
	if err != nil || !match {
		if rec, err = e.recordFailedAttempt(ctx, credDoc, rec); err != nil {
			return Result{}, fmt.Errorf("authcore: recording failed attempt: %w", err)
		}
		return Result{}, e.failLogin(ctx, rec.PlayerID, normalized, "password_mismatch")
	}
	plaintext = ""

	if countersDirty {
		if rec, err = e.clearLockout(ctx, credDoc, rec); err != nil {
			return Result{}, fmt.Errorf("authcore: clearing lockout: %w", err)
		}
	}

	pair, err := e.tokens.CreatePair(ctx, rec.PlayerID, agentFromContext(ctx))
	if err != nil {
		return Result{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, rec.PlayerID, normalized, nil, nil)

	return Result{PlayerID: rec.PlayerID, Tokens: pair}, nil
}

func (e *Engine) failLogin(ctx context.Context, playerID, email, reason string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, playerID, email, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return ErrInvalidCredentials
}
