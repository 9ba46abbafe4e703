package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nextrealm/authcore/docstore"
)

// Register creates a new account and logs it in. Email uniqueness is enforced
// by a two-document transaction: the email lookup record and the credential
// record are both written at version 0, so a concurrent duplicate loses the
// conditional write rather than racing a read-then-write check.
func (e *Engine) Register(ctx context.Context, email, plaintext string) (Result, error) {
	if e == nil || e.hasher == nil {
		return Result{}, ErrEngineNotReady
	}

	normalized := normalizeEmail(email)
	if !validEmail(normalized) {
		return Result{}, ErrInvalidEmail
	}
	if !validPassword(plaintext) {
		return Result{}, ErrWeakPassword
	}

	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return Result{}, fmt.Errorf("authcore: hashing password: %w", err)
	}
	plaintext = ""

	playerID := uuid.NewString()
	now := e.nowMilli()

	lookupDoc, err := docstore.Encode(e.config.Collections.Main, emailKey(normalized), EmailLookupRecord{
		PlayerID:  playerID,
		Email:     normalized,
		CreatedAt: now,
	})
	if err != nil {
		return Result{}, err
	}
	credDoc, err := docstore.Encode(e.config.Collections.Main, credentialKey(playerID), CredentialRecord{
		PlayerID:     playerID,
		Email:        normalized,
		PasswordHash: hash,
		Status:       CredentialStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Result{}, err
	}

	if err := e.store.TransactPut(ctx, lookupDoc, credDoc); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", normalized, ErrEmailTaken, nil)
			return Result{}, ErrEmailTaken
		}
		return Result{}, fmt.Errorf("authcore: persisting registration: %w", err)
	}

	pair, err := e.tokens.CreatePair(ctx, playerID, agentFromContext(ctx))
	if err != nil {
		return Result{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, playerID, normalized, nil, nil)
	e.logger.Info("account registered", zap.String("player_id", playerID))

	return Result{PlayerID: playerID, Tokens: pair}, nil
}
