package authcore

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nextrealm/authcore/docstore"
	"github.com/nextrealm/authcore/keyring"
	"github.com/nextrealm/authcore/password"
	"github.com/nextrealm/authcore/token"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are configured through the Builder and are safe for
// concurrent use.
type Engine struct {
	config  Config
	store   docstore.Store
	clock   clockwork.Clock
	logger  *zap.Logger
	keys    *keyring.Manager
	tokens  *token.Issuer
	hasher  *password.Hasher
	audit   *auditDispatcher
	metrics *Metrics
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ValidateAccess verifies an access token offline against the published key
// set and returns its claims. Signature, expiry, and unknown-kid failures all
// surface as ErrInvalidAccessToken.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (token.Claims, error) {
	if e == nil || e.tokens == nil {
		return token.Claims{}, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := e.clock.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, e.clock.Now().Sub(start)) }()
	}

	claims, err := e.tokens.ValidateAccess(ctx, accessToken)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return token.Claims{}, ErrInvalidAccessToken
	}
	e.metricInc(MetricValidateSuccess)
	return claims, nil
}

func (e *Engine) nowMilli() int64 {
	return e.clock.Now().UnixMilli()
}
