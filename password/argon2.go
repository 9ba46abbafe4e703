// Package password hashes and verifies player passwords with Argon2id,
// encoded in PHC string format so algorithm, parameters, salt, and digest
// travel together with the hash.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithm = "argon2id"

// DummyHash is a syntactically valid encoded hash over an all-zero salt and
// digest. Login paths that bail out before reaching a real credential record
// (unknown email, malformed email) must still run Verify against it so the
// response time does not reveal whether an account exists.
const DummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA==$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

// Params are the Argon2id cost settings baked into newly produced hashes.
// Verification always honors the parameters embedded in the encoded hash, so
// raising these does not invalidate existing credentials.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the production cost settings: 64 MB, 3 passes,
// single lane, 16-byte salt, 32-byte digest.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher produces and verifies encoded password hashes.
//
// Hasher instances are configured during initialization and then treated as
// immutable; they are safe for concurrent use.
type Hasher struct {
	params Params
}

// NewHasher validates the cost settings and returns a Hasher.
func NewHasher(params Params) (*Hasher, error) {
	switch {
	case params.MemoryKB < 8*1024:
		return nil, errors.New("password: memory must be >= 8192 KB")
	case params.Iterations < 1:
		return nil, errors.New("password: iterations must be >= 1")
	case params.Parallelism < 1:
		return nil, errors.New("password: parallelism must be >= 1")
	case params.SaltLength < 16:
		return nil, errors.New("password: salt length must be >= 16")
	case params.KeyLength < 16:
		return nil, errors.New("password: key length must be >= 16")
	}
	return &Hasher{params: params}, nil
}

// Hash derives a salted digest of the password and returns the PHC-encoded
// string. A fresh random salt is drawn per call, so hashing the same password
// twice yields different encodings.
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	digest := argon2.IDKey(
		[]byte(plaintext),
		salt,
		h.params.Iterations,
		h.params.MemoryKB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(digest),
	), nil
}

// Verify recomputes the digest with the parameters embedded in encoded and
// compares in constant time. A malformed encoded hash reports an error; a
// clean mismatch reports (false, nil).
func (h *Hasher) Verify(plaintext, encoded string) (bool, error) {
	memory, iterations, parallelism, salt, digest, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(plaintext),
		salt,
		iterations,
		memory,
		parallelism,
		uint32(len(digest)),
	)

	return subtle.ConstantTimeCompare(computed, digest) == 1, nil
}

// VerifyDummy burns one full verification against DummyHash and discards the
// outcome. Call it on login paths that reject before loading a credential
// record.
func (h *Hasher) VerifyDummy() {
	_, _ = h.Verify("dummy", DummyHash)
}

func decode(encoded string) (memory, iterations uint32, parallelism uint8, salt, digest []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return 0, 0, 0, nil, nil, errors.New("password: not an argon2id hash")
	}

	version, convErr := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if !strings.HasPrefix(parts[2], "v=") || convErr != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("password: unsupported argon2 version")
	}

	for _, field := range strings.Split(parts[3], ",") {
		name, value, found := strings.Cut(field, "=")
		if !found {
			return 0, 0, 0, nil, nil, errors.New("password: malformed cost parameters")
		}
		n, convErr := strconv.ParseUint(value, 10, 32)
		if convErr != nil {
			return 0, 0, 0, nil, nil, errors.New("password: malformed cost parameters")
		}
		switch name {
		case "m":
			memory = uint32(n)
		case "t":
			iterations = uint32(n)
		case "p":
			if n > 255 {
				return 0, 0, 0, nil, nil, errors.New("password: malformed cost parameters")
			}
			parallelism = uint8(n)
		default:
			return 0, 0, 0, nil, nil, errors.New("password: malformed cost parameters")
		}
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return 0, 0, 0, nil, nil, errors.New("password: malformed cost parameters")
	}

	if salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(salt) == 0 {
		return 0, 0, 0, nil, nil, errors.New("password: malformed salt")
	}
	if digest, err = base64.StdEncoding.DecodeString(parts[5]); err != nil || len(digest) == 0 {
		return 0, 0, 0, nil, nil, errors.New("password: malformed digest")
	}
	return memory, iterations, parallelism, salt, digest, nil
}
