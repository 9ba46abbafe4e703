package authcore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nextrealm/authcore/docstore"
	"github.com/nextrealm/authcore/token"
)

// Refresh rotates a refresh token: the presented token is retired, a new one
// takes its place in the family record, and a fresh access token is minted
// for the family's player.
//
// Presenting a token whose hash does not match the family's current hash is
// replay: some earlier rotation already consumed it. The whole family is
// permanently revoked and ErrTokenReuse is returned, because either the
// client or an attacker is now holding a dead token and neither can be told
// apart.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (Result, error) {
	if e == nil || e.tokens == nil {
		return Result{}, ErrEngineNotReady
	}

	familyID, ok := token.FamilyID(refreshToken)
	if !ok {
		return Result{}, e.failRefresh(ctx, "", "malformed_token")
	}

	doc, found, err := e.store.Get(ctx, e.config.Collections.Main, token.FamilyKey(familyID))
	if err != nil {
		return Result{}, fmt.Errorf("authcore: loading family record: %w", err)
	}
	if !found {
		return Result{}, e.failRefresh(ctx, "", "unknown_family")
	}
	fam, err := docstore.Decode[token.FamilyRecord](doc)
	if err != nil {
		return Result{}, err
	}

	if fam.Status != token.FamilyStatusActive {
		return Result{}, e.failRefresh(ctx, fam.PlayerID, "family_revoked")
	}
	if fam.ExpiresAt <= e.nowMilli() {
		return Result{}, e.failRefresh(ctx, fam.PlayerID, "family_expired")
	}

	if token.Hash(refreshToken) != fam.CurrentTokenHash {
		e.revokeFamily(ctx, doc, fam)
		e.metricInc(MetricReplayDetected)
		e.emitAudit(ctx, auditEventRefreshReuse, false, fam.PlayerID, "", ErrTokenReuse, func() map[string]string {
			return map[string]string{
				"family_id": fam.FamilyID,
			}
		})
		return Result{}, ErrTokenReuse
	}

	next, err := token.NewRefreshToken(familyID, rand.Read)
	if err != nil {
		return Result{}, fmt.Errorf("authcore: generating refresh token: %w", err)
	}
	fam.CurrentTokenHash = token.Hash(next)
	fam.Sequence++
	if err := doc.SetPayload(fam); err != nil {
		return Result{}, err
	}
	if _, err := e.store.Put(ctx, doc); err != nil {
		// A concurrent rotation won the version race; this caller's token is
		// no longer current.
		if errors.Is(err, docstore.ErrVersionConflict) {
			return Result{}, e.failRefresh(ctx, fam.PlayerID, "rotation_conflict")
		}
		return Result{}, fmt.Errorf("authcore: rotating family record: %w", err)
	}

	access, err := e.tokens.MintAccess(ctx, fam.PlayerID, fam.Agent, fam.SessionID)
	if err != nil {
		return Result{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, fam.PlayerID, "", nil, nil)

	return Result{
		PlayerID: fam.PlayerID,
		Tokens: token.Pair{
			AccessToken:  access,
			RefreshToken: next,
			ExpiresIn:    int64(e.config.Token.AccessTTL.Seconds()),
		},
	}, nil
}

// revokeFamily marks the family revoked, retrying once if a concurrent write
// moved the version. Failure to persist is logged and swallowed: the caller
// is already rejecting the request, and the mismatched hash keeps rejecting
// future ones.
func (e *Engine) revokeFamily(ctx context.Context, doc docstore.Document, fam token.FamilyRecord) {
	for attempt := 0; attempt < 2; attempt++ {
		fam.Status = token.FamilyStatusRevoked
		if err := doc.SetPayload(fam); err != nil {
			e.logger.Error("family revocation encode failed", zap.Error(err))
			return
		}
		_, err := e.store.Put(ctx, doc)
		if err == nil {
			return
		}
		if !errors.Is(err, docstore.ErrVersionConflict) {
			e.logger.Error("family revocation write failed",
				zap.String("family_id", fam.FamilyID),
				zap.Error(err),
			)
			return
		}

		var found bool
		doc, found, err = e.store.Get(ctx, e.config.Collections.Main, token.FamilyKey(fam.FamilyID))
		if err != nil || !found {
			return
		}
		current, decodeErr := docstore.Decode[token.FamilyRecord](doc)
		if decodeErr != nil {
			return
		}
		if current.Status == token.FamilyStatusRevoked {
			return
		}
		fam = current
	}
	e.logger.Error("family revocation abandoned after retries",
		zap.String("family_id", fam.FamilyID),
	)
}

func (e *Engine) failRefresh(ctx context.Context, playerID, reason string) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, playerID, "", ErrInvalidToken, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return ErrInvalidToken
}
