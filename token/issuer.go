package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nextrealm/authcore/docstore"
	"github.com/nextrealm/authcore/keyring"
)

// Claims are the access-token payload: subject is the player id, sid ties the
// token to the refresh-token family it was issued alongside.
type Claims struct {
	Agent     string `json:"agent,omitempty"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Config holds issuance settings. Zero values fall back to the defaults
// below.
type Config struct {
	// Collection is the document collection holding family records.
	Collection string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// ClockSkew is the leeway granted when validating time claims.
	ClockSkew time.Duration
}

func (c *Config) applyDefaults() {
	if c.Collection == "" {
		c.Collection = "auth-main"
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 6 * time.Hour
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 60 * 24 * time.Hour
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = 30 * time.Second
	}
}

// Issuer mints signed access tokens with the keyring's active key and anchors
// refresh tokens in persisted family records. It is safe for concurrent use.
type Issuer struct {
	keys   *keyring.Manager
	store  docstore.Store
	clock  clockwork.Clock
	logger *zap.Logger
	cfg    Config
}

// NewIssuer wires an Issuer. A nil logger is replaced with a no-op one.
func NewIssuer(keys *keyring.Manager, store docstore.Store, clock clockwork.Clock, logger *zap.Logger, cfg Config) *Issuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Issuer{keys: keys, store: store, clock: clock, logger: logger, cfg: cfg}
}

// CreatePair starts a fresh session: a new refresh-token family persisted at
// sequence 1 plus an access token carrying the new session id.
func (i *Issuer) CreatePair(ctx context.Context, playerID, agent string) (Pair, error) {
	familyID := uuid.NewString()
	sessionID := uuid.NewString()

	refresh, err := NewRefreshToken(familyID, rand.Read)
	if err != nil {
		return Pair{}, fmt.Errorf("token: generating refresh token: %w", err)
	}

	now := i.clock.Now()
	rec := FamilyRecord{
		FamilyID:         familyID,
		PlayerID:         playerID,
		CurrentTokenHash: Hash(refresh),
		Sequence:         1,
		Status:           FamilyStatusActive,
		CreatedAt:        now.UnixMilli(),
		ExpiresAt:        now.Add(i.cfg.RefreshTTL).UnixMilli(),
		Agent:            agent,
		SessionID:        sessionID,
	}
	doc, err := docstore.Encode(i.cfg.Collection, FamilyKey(familyID), rec)
	if err != nil {
		return Pair{}, err
	}
	doc.IndexPartition = PlayerIndexPartition(playerID)
	doc.IndexSort = rec.CreatedAt
	doc.ExpiresAt = rec.ExpiresAt / 1000
	if _, err := i.store.Put(ctx, doc); err != nil {
		return Pair{}, fmt.Errorf("token: persisting family record: %w", err)
	}

	access, err := i.MintAccess(ctx, playerID, agent, sessionID)
	if err != nil {
		return Pair{}, err
	}

	i.logger.Debug("token pair issued",
		zap.String("player_id", playerID),
		zap.String("family_id", familyID),
	)
	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(i.cfg.AccessTTL.Seconds()),
	}, nil
}

// MintAccess signs an access token for the player with the active key. The
// key id travels in the JOSE header so validators can pick the matching
// public key out of the JWKS.
func (i *Issuer) MintAccess(ctx context.Context, playerID, agent, sessionID string) (string, error) {
	key, kid, err := i.keys.ActiveKey(ctx)
	if err != nil {
		return "", err
	}

	now := i.clock.Now()
	claims := Claims{
		Agent:     agent,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.AccessTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("token: signing access token: %w", err)
	}
	return signed, nil
}

// ValidateAccess verifies the token's signature against the published key set
// and its time claims against the injected clock, and returns the parsed
// claims. Every failure maps to ErrInvalidAccess.
func (i *Issuer) ValidateAccess(ctx context.Context, tokenString string) (Claims, error) {
	jwks, err := i.keys.JWKS(ctx)
	if err != nil {
		return Claims{}, err
	}

	var claims Claims
	_, err = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(i.cfg.ClockSkew),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	).ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token: missing kid header")
		}
		for _, jwk := range jwks.Key(kid) {
			if pub, ok := jwk.Key.(*rsa.PublicKey); ok {
				return pub, nil
			}
		}
		return nil, fmt.Errorf("token: unknown kid %q", kid)
	})
	if err != nil || claims.Subject == "" {
		return Claims{}, ErrInvalidAccess
	}
	return claims, nil
}
