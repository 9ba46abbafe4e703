// Package authcore is an embeddable authentication engine for game backends.
//
// It covers the full credential lifecycle: registration and login with
// Argon2id password hashing and lockout, rotating refresh-token families with
// replay detection, RS256 access tokens signed by an envelope-encrypted key
// hierarchy, and JWKS publication for downstream validators.
//
// State lives behind the docstore.Store contract, so the same engine runs
// against DynamoDB, Redis, or the in-memory store used in tests. Construct an
// Engine with the builder:
//
//	engine, err := authcore.New().
//		WithStore(store).
//		WithMasterKey(masterKey).
//		Build()
//
// All operations take a context.Context and return sentinel errors that map
// to stable wire codes via CodeFor.
package authcore
