// Package keyring owns the RSA signing-key lifecycle: lazy bootstrap of the
// first active key, envelope encryption of private material at rest, and the
// published JWKS. One process holds at most one decrypted active key in
// memory, behind a single-flight cache.
package keyring

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nextrealm/authcore/docstore"
	"github.com/nextrealm/authcore/envelope"
)

// Signing-key record statuses. Rotated and retired keys stay published in the
// JWKS so tokens signed before a rotation keep validating until they expire.
const (
	StatusActive  = "active"
	StatusRotated = "rotated"
	StatusRetired = "retired"
)

// IndexPartition is the secondary-index partition every signing-key record
// lands on, ordered by creation time.
const IndexPartition = "signing-keys"

// ErrNoActiveKey is returned when neither the store nor a bootstrap attempt
// produced an active signing key.
var ErrNoActiveKey = errors.New("keyring: no active signing key")

// Record is the persisted form of one signing keypair. PublicKey is a
// base64 PKIX DER; EncryptedPrivateKey is the envelope-sealed PKCS#1 DER.
type Record struct {
	Kid                 string `json:"kid"`
	Algorithm           string `json:"algorithm"`
	PublicKey           string `json:"publicKey"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
	Status              string `json:"status"`
	CreatedAt           int64  `json:"createdAt"`
	RotatedAt           int64  `json:"rotatedAt"`
	RetiredAt           int64  `json:"retiredAt"`
}

// Config controls key generation and cache behavior.
type Config struct {
	// Collection is the docstore collection holding signing-key records.
	Collection string
	// RSABits is the modulus size for generated keys, minimum 2048.
	RSABits int
	// ScanLimit bounds the index page examined when resolving the active
	// key and building the JWKS.
	ScanLimit int
	// CacheTTL bounds how long the decrypted key and JWKS are served
	// without re-reading the store. Zero means the cache lives for the
	// process lifetime; set it when external rotation must be picked up.
	CacheTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Collection == "" {
		c.Collection = "signing-keys"
	}
	if c.RSABits < 2048 {
		c.RSABits = 2048
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = 10
	}
}

type snapshot struct {
	key      *rsa.PrivateKey
	kid      string
	jwks     jose.JSONWebKeySet
	loadedAt time.Time
}

// Manager resolves the active signing key and the published JWKS.
//
// Cache hits are lock-free; concurrent cache misses collapse into exactly one
// store read (and at most one bootstrap) behind the refresh mutex.
type Manager struct {
	store  docstore.Store
	sealer *envelope.Sealer
	clock  clockwork.Clock
	logger *zap.Logger
	cfg    Config

	mu    sync.Mutex
	state atomic.Pointer[snapshot]
}

// NewManager wires the lifecycle manager. logger may be nil.
func NewManager(store docstore.Store, sealer *envelope.Sealer, clock clockwork.Clock, logger *zap.Logger, cfg Config) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		sealer: sealer,
		clock:  clock,
		logger: logger,
		cfg:    cfg,
	}
}

// ActiveKey returns the decrypted active private key and its kid,
// bootstrapping a first key when none exists yet.
func (m *Manager) ActiveKey(ctx context.Context) (*rsa.PrivateKey, string, error) {
	s, err := m.current(ctx)
	if err != nil {
		return nil, "", err
	}
	return s.key, s.kid, nil
}

// JWKS returns the published key set: every known key whose status is
// active, rotated, or retired.
func (m *Manager) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	s, err := m.current(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	return s.jwks, nil
}

// Invalidate drops the cached key and JWKS; the next call refreshes from the
// store.
func (m *Manager) Invalidate() {
	m.state.Store(nil)
}

func (m *Manager) fresh() *snapshot {
	s := m.state.Load()
	if s == nil {
		return nil
	}
	if m.cfg.CacheTTL > 0 && m.clock.Now().Sub(s.loadedAt) >= m.cfg.CacheTTL {
		return nil
	}
	return s
}

func (m *Manager) current(ctx context.Context) (*snapshot, error) {
	if s := m.fresh(); s != nil {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have completed the refresh while we waited.
	if s := m.fresh(); s != nil {
		return s, nil
	}
	return m.refreshLocked(ctx)
}

// refreshLocked resolves the active record (bootstrapping when absent),
// decrypts its private key, and rebuilds the JWKS. Callers hold m.mu.
func (m *Manager) refreshLocked(ctx context.Context) (*snapshot, error) {
	docs, err := m.store.QueryIndex(ctx, m.cfg.Collection, IndexPartition, true, m.cfg.ScanLimit)
	if err != nil {
		return nil, err
	}

	records, activeIdx, err := decodeRecords(docs)
	if err != nil {
		return nil, err
	}

	if activeIdx < 0 {
		if err := m.bootstrap(ctx, records); err != nil {
			return nil, err
		}
		// Re-read so the winner's record is adopted even when a
		// concurrent process beat us to the version-0 write.
		docs, err = m.store.QueryIndex(ctx, m.cfg.Collection, IndexPartition, true, m.cfg.ScanLimit)
		if err != nil {
			return nil, err
		}
		if records, activeIdx, err = decodeRecords(docs); err != nil {
			return nil, err
		}
		if activeIdx < 0 {
			return nil, ErrNoActiveKey
		}
	}

	active := records[activeIdx]
	privDER, err := m.sealer.Open(active.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("keyring: unwrapping private key %s: %w", active.Kid, err)
	}
	privKey, err := x509.ParsePKCS1PrivateKey(privDER)
	if err != nil {
		return nil, fmt.Errorf("keyring: parsing private key %s: %w", active.Kid, err)
	}

	jwks, err := buildJWKS(records)
	if err != nil {
		return nil, err
	}

	s := &snapshot{
		key:      privKey,
		kid:      active.Kid,
		jwks:     jwks,
		loadedAt: m.clock.Now(),
	}
	m.state.Store(s)
	return s, nil
}

// bootstrap generates and persists a brand-new active key. Losing the
// version-0 race to a concurrent bootstrap is not an error; the caller
// re-reads and adopts the winner.
func (m *Manager) bootstrap(ctx context.Context, records []Record) error {
	kid := m.kidForToday()
	if kidTaken(records, kid) {
		// A rotated or retired key from earlier the same day holds the
		// plain date kid; the must-not-exist write can never succeed.
		kid = kid + "-" + randomSuffix()
	}
	doc, kid, err := m.newKeyDocument(kid, StatusActive)
	if err != nil {
		return err
	}
	if _, err := m.store.Put(ctx, doc); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			m.logger.Info("signing key bootstrap lost race, adopting winner", zap.String("kid", kid))
			return nil
		}
		return err
	}
	m.logger.Info("bootstrapped signing key", zap.String("kid", kid))
	return nil
}

// Rotate marks the current active key rotated, persists a fresh active key,
// and invalidates the cache. It returns the new kid. Both writes travel in
// one transaction, so a lost race never leaves the set without an active key.
func (m *Manager) Rotate(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		kid, err := m.rotateOnce(ctx)
		if err == nil {
			m.logger.Info("rotated signing key", zap.String("kid", kid))
			m.state.Store(nil)
			return kid, nil
		}
		if !errors.Is(err, docstore.ErrVersionConflict) {
			return "", err
		}
		// A concurrent rotation moved the records; re-read and try once
		// more with a fresh view.
		lastErr = err
	}
	return "", lastErr
}

func (m *Manager) rotateOnce(ctx context.Context) (string, error) {
	docs, err := m.store.QueryIndex(ctx, m.cfg.Collection, IndexPartition, true, m.cfg.ScanLimit)
	if err != nil {
		return "", err
	}
	records, activeIdx, err := decodeRecords(docs)
	if err != nil {
		return "", err
	}

	writes := make([]docstore.Document, 0, 2)
	if activeIdx >= 0 {
		rotated := records[activeIdx]
		rotated.Status = StatusRotated
		rotated.RotatedAt = m.clock.Now().UnixMilli()
		doc := docs[activeIdx]
		if err := doc.SetPayload(rotated); err != nil {
			return "", err
		}
		writes = append(writes, doc)
	}

	kid := m.kidForToday()
	if kidTaken(records, kid) {
		// Any key minted earlier the same day holds the plain date kid,
		// not just the one being replaced.
		kid = kid + "-" + randomSuffix()
	}
	newDoc, kid, err := m.newKeyDocument(kid, StatusActive)
	if err != nil {
		return "", err
	}
	writes = append(writes, newDoc)

	if err := m.store.TransactPut(ctx, writes...); err != nil {
		return "", err
	}
	return kid, nil
}

// kid derivation is deterministic for the day so repeated cold-start
// bootstraps produce a recognizable id; uniqueness comes from the store's
// must-not-exist condition.
func (m *Manager) kidForToday() string {
	return "key-" + m.clock.Now().UTC().Format("2006-01-02")
}

func (m *Manager) newKeyDocument(kid, status string) (docstore.Document, string, error) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, m.cfg.RSABits)
	if err != nil {
		return docstore.Document{}, "", err
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	if err != nil {
		return docstore.Document{}, "", err
	}
	sealed, err := m.sealer.Seal(x509.MarshalPKCS1PrivateKey(rsaKey))
	if err != nil {
		return docstore.Document{}, "", err
	}

	nowMs := m.clock.Now().UnixMilli()
	rec := Record{
		Kid:                 kid,
		Algorithm:           "RS256",
		PublicKey:           base64.StdEncoding.EncodeToString(pubDER),
		EncryptedPrivateKey: sealed,
		Status:              status,
		CreatedAt:           nowMs,
	}

	doc, err := docstore.Encode(m.cfg.Collection, recordKey(kid), rec)
	if err != nil {
		return docstore.Document{}, "", err
	}
	doc.IndexPartition = IndexPartition
	doc.IndexSort = nowMs
	return doc, kid, nil
}

func recordKey(kid string) string {
	return "signing-key/" + kid
}

func kidTaken(records []Record, kid string) bool {
	for _, rec := range records {
		if rec.Kid == kid {
			return true
		}
	}
	return false
}

func randomSuffix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func decodeRecords(docs []docstore.Document) (records []Record, activeIdx int, err error) {
	activeIdx = -1
	records = make([]Record, len(docs))
	for i, doc := range docs {
		rec, err := docstore.Decode[Record](doc)
		if err != nil {
			return nil, -1, fmt.Errorf("keyring: corrupt signing key record %s: %w", doc.Key, err)
		}
		records[i] = rec
		if activeIdx < 0 && rec.Status == StatusActive {
			activeIdx = i
		}
	}
	return records, activeIdx, nil
}

func buildJWKS(records []Record) (jose.JSONWebKeySet, error) {
	var jwks jose.JSONWebKeySet
	for _, rec := range records {
		switch rec.Status {
		case StatusActive, StatusRotated, StatusRetired:
		default:
			continue
		}

		pubDER, err := base64.StdEncoding.DecodeString(rec.PublicKey)
		if err != nil {
			return jose.JSONWebKeySet{}, fmt.Errorf("keyring: corrupt public key for %s: %w", rec.Kid, err)
		}
		parsed, err := x509.ParsePKIXPublicKey(pubDER)
		if err != nil {
			return jose.JSONWebKeySet{}, fmt.Errorf("keyring: parsing public key for %s: %w", rec.Kid, err)
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return jose.JSONWebKeySet{}, fmt.Errorf("keyring: public key for %s is not RSA", rec.Kid)
		}

		jwks.Keys = append(jwks.Keys, jose.JSONWebKey{
			Key:       pub,
			KeyID:     rec.Kid,
			Algorithm: "RS256",
			Use:       "sig",
		})
	}
	return jwks, nil
}
