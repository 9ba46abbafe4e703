// Package token mints and validates RS256 access tokens and owns the
// refresh-token wire format and its persisted family records. Rotation and
// replay policy live in the engine; this package supplies the primitives.
package token

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidAccess covers every access-token verification failure: malformed
// token, unknown kid, bad signature, or expiry.
var ErrInvalidAccess = errors.New("token: invalid access token")

// Pair is the result of a successful issuance or rotation.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Refresh-token family statuses. Revocation is terminal.
const (
	FamilyStatusActive  = "active"
	FamilyStatusRevoked = "revoked"
)

// FamilyRecord tracks one refresh-token lineage. CurrentTokenHash is the
// digest of the only refresh token value currently valid for the family; the
// raw token is never persisted.
type FamilyRecord struct {
	FamilyID         string `json:"familyId"`
	PlayerID         string `json:"playerId"`
	CurrentTokenHash string `json:"currentTokenHash"`
	Sequence         int64  `json:"sequence"`
	Status           string `json:"status"`
	CreatedAt        int64  `json:"createdAt"`
	ExpiresAt        int64  `json:"expiresAt"`
	Agent            string `json:"agent"`
	SessionID        string `json:"sessionId"`
}

const refreshSecretSize = 32

// NewRefreshToken builds a refresh token for the family: the family id, a
// dot, and 256 bits of fresh randomness in unpadded base64url.
func NewRefreshToken(familyID string, random func([]byte) (int, error)) (string, error) {
	secret := make([]byte, refreshSecretSize)
	if _, err := random(secret); err != nil {
		return "", err
	}
	return familyID + "." + base64.RawURLEncoding.EncodeToString(secret), nil
}

// FamilyID extracts the family id prefix from a presented refresh token. It
// reports false for malformed input: no separator or an empty id.
func FamilyID(token string) (string, bool) {
	idx := strings.Index(token, ".")
	if idx < 1 {
		return "", false
	}
	return token[:idx], true
}

// Hash is the deterministic one-way digest stored in place of refresh-token
// values: base64 of SHA-256 over the full token string.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// FamilyKey is the document key for a family record.
func FamilyKey(familyID string) string {
	return "refresh-family/" + familyID
}

// PlayerIndexPartition is the secondary-index partition grouping a player's
// families, ordered by creation time.
func PlayerIndexPartition(playerID string) string {
	return "player-refresh/" + playerID
}
