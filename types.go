package authcore

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/nextrealm/authcore/token"
)

// Persisted credential statuses. LockedUntil stays the source of truth for
// enforcement; Status is the label other readers of the record see.
const (
	CredentialStatusActive = "active"
	CredentialStatusLocked = "locked"
)

// CredentialRecord defines a public type used by authcore APIs.
//
// CredentialRecord instances are persisted per player and carry both the
// password hash and the lockout counters, so a single conditional write
// updates them together.
type CredentialRecord struct {
	PlayerID       string `json:"playerId"`
	Email          string `json:"email"`
	PasswordHash   string `json:"passwordHash"`
	Status         string `json:"status"`
	FailedAttempts int    `json:"failedAttempts"`
	LockedUntil    int64  `json:"lockedUntil,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// EmailLookupRecord defines a public type used by authcore APIs.
//
// EmailLookupRecord maps a normalized email address to the owning player id.
// Its version-0 write during registration is what makes emails unique.
type EmailLookupRecord struct {
	PlayerID  string `json:"playerId"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"createdAt"`
}

// Result is the outcome of a successful Register, Login, or Refresh.
type Result struct {
	PlayerID string     `json:"playerId"`
	Tokens   token.Pair `json:"tokens"`
}

// emailKey addresses the lookup record. The normalized email is digested so
// document keys stay fixed-width and never carry the raw address.
func emailKey(normalizedEmail string) string {
	sum := sha256.Sum256([]byte(normalizedEmail))
	return "email/" + hex.EncodeToString(sum[:])
}

func credentialKey(playerID string) string {
	return "player-cred/" + playerID
}
