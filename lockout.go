package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nextrealm/authcore/docstore"
)

func (r CredentialRecord) locked(nowMs int64) bool {
	return r.LockedUntil > nowMs
}

func (r CredentialRecord) lockExpired(nowMs int64) bool {
	return r.LockedUntil != 0 && r.LockedUntil <= nowMs
}

// saveCredential writes rec back at the version the caller read. A version
// conflict means a concurrent login attempt already updated the counters; the
// loser's bookkeeping is dropped rather than retried, the security outcome of
// the current attempt is unaffected.
func (e *Engine) saveCredential(ctx context.Context, doc docstore.Document, rec CredentialRecord) error {
	rec.UpdatedAt = e.nowMilli()
	if err := doc.SetPayload(rec); err != nil {
		return err
	}
	if _, err := e.store.Put(ctx, doc); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			e.logger.Debug("credential update lost a write race",
				zap.String("player_id", rec.PlayerID),
			)
			return nil
		}
		return err
	}
	return nil
}

// recordFailedAttempt bumps the failure counter and arms the lockout once the
// threshold is reached.
func (e *Engine) recordFailedAttempt(ctx context.Context, doc docstore.Document, rec CredentialRecord) (CredentialRecord, error) {
	rec.FailedAttempts++
	if rec.FailedAttempts >= e.config.Lockout.MaxAttempts {
		rec.LockedUntil = e.clock.Now().Add(e.config.Lockout.Duration).UnixMilli()
		rec.Status = CredentialStatusLocked
		e.logger.Warn("account locked after repeated failures",
			zap.String("player_id", rec.PlayerID),
			zap.Int("attempts", rec.FailedAttempts),
		)
	}
	return rec, e.saveCredential(ctx, doc, rec)
}

// clearLockout resets the counters after a lock expires or a login succeeds.
func (e *Engine) clearLockout(ctx context.Context, doc docstore.Document, rec CredentialRecord) (CredentialRecord, error) {
	rec.FailedAttempts = 0
	rec.LockedUntil = 0
	rec.Status = CredentialStatusActive
	return rec, e.saveCredential(ctx, doc, rec)
}
