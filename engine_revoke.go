package authcore

import (
	"context"
	"fmt"

	"github.com/nextrealm/authcore/docstore"
	"github.com/nextrealm/authcore/token"
)

// Revoke ends a session: the refresh-token family is marked revoked so no
// further rotation succeeds. The caller proves ownership with a valid access
// token for the same player.
//
// Revoking a family that is already revoked or no longer exists is a no-op,
// so logout is safe to retry.
func (e *Engine) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	claims, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	familyID, ok := token.FamilyID(refreshToken)
	if !ok {
		return ErrInvalidToken
	}

	doc, found, err := e.store.Get(ctx, e.config.Collections.Main, token.FamilyKey(familyID))
	if err != nil {
		return fmt.Errorf("authcore: loading family record: %w", err)
	}
	if !found {
		return nil
	}
	fam, err := docstore.Decode[token.FamilyRecord](doc)
	if err != nil {
		return err
	}

	if fam.PlayerID != claims.Subject {
		return ErrInvalidToken
	}
	if fam.Status == token.FamilyStatusRevoked {
		return nil
	}

	e.revokeFamily(ctx, doc, fam)
	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, auditEventRevoke, true, fam.PlayerID, "", nil, func() map[string]string {
		return map[string]string{
			"family_id": fam.FamilyID,
		}
	})
	return nil
}
