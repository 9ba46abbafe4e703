package authcore

import (
	"errors"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nextrealm/authcore/docstore"
	"github.com/nextrealm/authcore/envelope"
	"github.com/nextrealm/authcore/keyring"
	"github.com/nextrealm/authcore/password"
	"github.com/nextrealm/authcore/token"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and
// then consumed by a single Build call.
type Builder struct {
	config    Config
	store     docstore.Store
	clock     clockwork.Clock
	logger    *zap.Logger
	masterKey []byte
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the document store backing all engine state.
func (b *Builder) WithStore(store docstore.Store) *Builder {
	b.store = store
	return b
}

// WithClock overrides the time source. Tests inject a fake clock here;
// production builds default to the real one.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

// WithLogger sets the structured logger. Absent a logger the engine stays
// silent.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMasterKey sets the 32-byte master key that envelope-encrypts signing
// keys at rest.
func (b *Builder) WithMasterKey(key []byte) *Builder {
	b.masterKey = append([]byte(nil), key...)
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the subsystems, and returns the
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("document store required")
	}
	if len(b.masterKey) == 0 {
		return nil, errors.New("master key required")
	}

	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sealer, err := envelope.New(b.masterKey)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	keys := keyring.NewManager(b.store, sealer, clock, logger, keyring.Config{
		Collection: cfg.Collections.SigningKeys,
		RSABits:    cfg.Keys.RSABits,
		ScanLimit:  cfg.Keys.ScanLimit,
		CacheTTL:   cfg.Keys.CacheTTL,
	})
	tokens := token.NewIssuer(keys, b.store, clock, logger, token.Config{
		Collection: cfg.Collections.Main,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		ClockSkew:  cfg.Token.ClockSkew,
	})

	engine := &Engine{
		config:  cfg,
		store:   b.store,
		clock:   clock,
		logger:  logger,
		keys:    keys,
		tokens:  tokens,
		hasher:  hasher,
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
