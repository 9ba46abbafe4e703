package authcore

import (
	"context"
	"time"

	"github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"
)

// JWKSCacheMaxAge is how long boundaries may cache the published key set.
// Rotated keys stay in the set, so staleness within this window is harmless.
const JWKSCacheMaxAge = time.Hour

// JWKS returns the published key set: the active signing key plus rotated and
// retired keys, so tokens signed before a rotation keep validating until they
// expire.
func (e *Engine) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	if e == nil || e.keys == nil {
		return jose.JSONWebKeySet{}, ErrEngineNotReady
	}
	return e.keys.JWKS(ctx)
}

// RotateSigningKey generates a new active signing key and marks the previous
// one rotated. It returns the new key id.
func (e *Engine) RotateSigningKey(ctx context.Context) (string, error) {
	if e == nil || e.keys == nil {
		return "", ErrEngineNotReady
	}
	kid, err := e.keys.Rotate(ctx)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricKeyRotation)
	e.emitAudit(ctx, auditEventKeyRotated, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"kid": kid,
		}
	})
	e.logger.Info("signing key rotated", zap.String("kid", kid))
	return kid, nil
}
