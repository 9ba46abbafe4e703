package authcore

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/nextrealm/authcore/docstore"
	"github.com/nextrealm/authcore/envelope"
	"github.com/nextrealm/authcore/password"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "StrongPass1"
)

// testPasswordParams keeps the Argon2 work factor test-friendly.
func testPasswordParams() password.Params {
	return password.Params{
		MemoryKB:    8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestMasterKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, envelope.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("master key generation failed: %v", err)
	}
	return key
}

func newTestEngine(t *testing.T) (*Engine, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	store := docstore.NewMemory(clock)
	return newTestEngineWith(t, store, clock), clock
}

func newTestEngineWith(t *testing.T, store docstore.Store, clock clockwork.Clock) *Engine {
	t.Helper()

	cfg := defaultConfig()
	cfg.Password = testPasswordParams()

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithClock(clock).
		WithMasterKey(newTestMasterKey(t)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func mustRegister(t *testing.T, e *Engine) Result {
	t.Helper()

	res, err := e.Register(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res
}

func TestRegisterIssuesSession(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := mustRegister(t, e)
	if res.PlayerID == "" {
		t.Fatal("missing player id")
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("incomplete token pair")
	}

	claims, err := e.ValidateAccess(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if claims.Subject != res.PlayerID {
		t.Fatalf("token subject %s, want %s", claims.Subject, res.PlayerID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, e)
	if _, err := e.Register(ctx, testEmail, "OtherPass42x"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	// Normalization must not open a loophole.
	if _, err := e.Register(ctx, "  ALICE@Example.com ", "OtherPass42x"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken for re-cased email, got %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, email := range []string{"", "plain", "a@b", "a b@c.com", "@example.com"} {
		if _, err := e.Register(ctx, email, testPassword); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
	for _, pw := range []string{"", "Short1", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere"} {
		if _, err := e.Register(ctx, testEmail, pw); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("password %q: expected ErrWeakPassword, got %v", pw, err)
		}
	}
}

func TestLoginSuccess(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	registered := mustRegister(t, e)

	// Address is normalized before lookup.
	res, err := e.Login(ctx, " Alice@EXAMPLE.com ", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.PlayerID != registered.PlayerID {
		t.Fatalf("login resolved player %s, want %s", res.PlayerID, registered.PlayerID)
	}
	if res.Tokens.RefreshToken == registered.Tokens.RefreshToken {
		t.Fatal("each login must start a fresh refresh-token family")
	}
}

func TestLoginRejections(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, e)

	cases := []struct {
		name, email, pw string
	}{
		{"unknown email", "nobody@example.com", testPassword},
		{"malformed email", "not-an-email", testPassword},
		{"wrong password", testEmail, "WrongPass99"},
	}
	for _, tc := range cases {
		if _, err := e.Login(ctx, tc.email, tc.pw); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", tc.name, err)
		}
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, e)

	for i := 0; i < 5; i++ {
		if _, err := e.Login(ctx, testEmail, "WrongPass99"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Locked now, even with the right password.
	if _, err := e.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	// Still locked just before the window closes.
	clock.Advance(14 * time.Minute)
	if _, err := e.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked inside window, got %v", err)
	}

	// Unlocks lazily once the window has passed.
	clock.Advance(2 * time.Minute)
	if _, err := e.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("post-lockout login failed: %v", err)
	}
}

func TestLockoutCountersResetAfterUnlock(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, e)

	for i := 0; i < 5; i++ {
		_, _ = e.Login(ctx, testEmail, "WrongPass99")
	}
	clock.Advance(16 * time.Minute)

	// The expired lock clears even when the unlocking attempt fails, so one
	// more bad password must not re-lock immediately.
	if _, err := e.Login(ctx, testEmail, "WrongPass99"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := e.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login after single post-unlock failure must succeed: %v", err)
	}
}

func TestCredentialStatusTracksLockState(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	store := docstore.NewMemory(clock)
	e := newTestEngineWith(t, store, clock)
	ctx := context.Background()

	res := mustRegister(t, e)

	readCred := func() CredentialRecord {
		t.Helper()
		doc, ok, err := store.Get(ctx, e.config.Collections.Main, credentialKey(res.PlayerID))
		if err != nil || !ok {
			t.Fatalf("credential record missing: ok=%v err=%v", ok, err)
		}
		rec, err := docstore.Decode[CredentialRecord](doc)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		return rec
	}

	if rec := readCred(); rec.Status != CredentialStatusActive {
		t.Fatalf("fresh credential status = %q, want %q", rec.Status, CredentialStatusActive)
	}

	for i := 0; i < 5; i++ {
		if _, err := e.Login(ctx, testEmail, "WrongPass99"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if rec := readCred(); rec.Status != CredentialStatusLocked {
		t.Fatalf("locked credential status = %q, want %q", rec.Status, CredentialStatusLocked)
	}

	clock.Advance(16 * time.Minute)
	if _, err := e.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("post-expiry login failed: %v", err)
	}
	if rec := readCred(); rec.Status != CredentialStatusActive || rec.FailedAttempts != 0 {
		t.Fatalf("credential not reset after unlock: %+v", rec)
	}
}

func TestSuccessfulLoginResetsFailures(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, e)

	for i := 0; i < 4; i++ {
		_, _ = e.Login(ctx, testEmail, "WrongPass99")
	}
	if _, err := e.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Counter was reset; four more failures stay below the threshold.
	for i := 0; i < 4; i++ {
		_, _ = e.Login(ctx, testEmail, "WrongPass99")
	}
	if _, err := e.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("expected reset counter to keep account unlocked: %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := mustRegister(t, e)

	first, err := e.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if first.PlayerID != res.PlayerID {
		t.Fatalf("refresh resolved player %s, want %s", first.PlayerID, res.PlayerID)
	}
	if first.Tokens.RefreshToken == res.Tokens.RefreshToken {
		t.Fatal("rotation must issue a new refresh token")
	}

	second, err := e.Refresh(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if _, err := e.ValidateAccess(ctx, second.Tokens.AccessToken); err != nil {
		t.Fatalf("rotated access token invalid: %v", err)
	}
}

func TestRefreshReplayRevokesFamily(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := mustRegister(t, e)

	rotated, err := e.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replaying the consumed token kills the family.
	if _, err := e.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("expected ErrTokenReuse, got %v", err)
	}

	// Even the legitimately rotated token is now dead.
	if _, err := e.Refresh(ctx, rotated.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after family revocation, got %v", err)
	}
}

func TestRefreshInvalidTokens(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, e)

	for _, tok := range []string{"", "nodot", "unknown-family.c2VjcmV0"} {
		if _, err := e.Refresh(ctx, tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestRefreshExpiredFamily(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	res := mustRegister(t, e)

	clock.Advance(61 * 24 * time.Hour)
	if _, err := e.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired family, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := mustRegister(t, e)

	if err := e.Revoke(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := e.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}

	// Revocation is idempotent.
	if err := e.Revoke(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("repeat Revoke failed: %v", err)
	}
	// Unknown family is a no-op.
	if err := e.Revoke(ctx, res.Tokens.AccessToken, "gone-family.c2VjcmV0"); err != nil {
		t.Fatalf("Revoke of unknown family failed: %v", err)
	}
}

func TestRevokeRequiresValidAccessToken(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := mustRegister(t, e)

	if err := e.Revoke(ctx, "garbage", res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}

	// A valid token for a different player cannot revoke this family.
	other, err := e.Register(ctx, "bob@example.com", testPassword)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := e.Revoke(ctx, other.Tokens.AccessToken, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for cross-player revoke, got %v", err)
	}
}

func TestJWKSAndRotation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := mustRegister(t, e)

	jwks, err := e.JWKS(ctx)
	if err != nil {
		t.Fatalf("JWKS failed: %v", err)
	}
	if len(jwks.Keys) != 1 {
		t.Fatalf("expected 1 published key, got %d", len(jwks.Keys))
	}

	kid, err := e.RotateSigningKey(ctx)
	if err != nil {
		t.Fatalf("RotateSigningKey failed: %v", err)
	}
	jwks, err = e.JWKS(ctx)
	if err != nil {
		t.Fatalf("post-rotation JWKS failed: %v", err)
	}
	if len(jwks.Keys) != 2 {
		t.Fatalf("expected 2 published keys, got %d", len(jwks.Keys))
	}
	if len(jwks.Key(kid)) != 1 {
		t.Fatal("new key missing from JWKS")
	}

	// Tokens signed before the rotation stay valid.
	if _, err := e.ValidateAccess(ctx, res.Tokens.AccessToken); err != nil {
		t.Fatalf("pre-rotation token rejected: %v", err)
	}
}

func TestValidateAccessExpiry(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	res := mustRegister(t, e)

	clock.Advance(7 * time.Hour)
	if _, err := e.ValidateAccess(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken for expired token, got %v", err)
	}

	// The refresh family is still good for a new access token.
	rotated, err := e.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := e.ValidateAccess(ctx, rotated.Tokens.AccessToken); err != nil {
		t.Fatalf("fresh access token rejected: %v", err)
	}
}

func TestEngineOnRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	mr.SetTime(clock.Now())
	e := newTestEngineWith(t, docstore.NewRedis(client, "authcore"), clock)
	ctx := context.Background()

	mustRegister(t, e)
	if _, err := e.Register(ctx, testEmail, testPassword); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken on redis store, got %v", err)
	}

	login, err := e.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	rotated, err := e.Refresh(ctx, login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := e.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("expected ErrTokenReuse on redis store, got %v", err)
	}
	if _, err := e.Refresh(ctx, rotated.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked family on redis store, got %v", err)
	}
}

func TestMetricsCounters(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, e)
	_, _ = e.Login(ctx, testEmail, "WrongPass99")
	if _, err := e.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricRegisterSuccess] != 1 {
		t.Fatalf("register counter = %d", snap.Counters[MetricRegisterSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login failure counter = %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login success counter = %d", snap.Counters[MetricLoginSuccess])
	}
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{nil, ""},
		{ErrInvalidEmail, "invalid_email"},
		{ErrWeakPassword, "weak_password"},
		{ErrEmailTaken, "email_taken"},
		{ErrInvalidCredentials, "invalid_credentials"},
		{ErrAccountLocked, "account_locked"},
		{ErrInvalidToken, "invalid_token"},
		{ErrTokenReuse, "token_reuse_detected"},
		{ErrInvalidAccessToken, "invalid_access_token"},
		{ErrEngineNotReady, "not_ready"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tc := range cases {
		if got := CodeFor(tc.err); got != tc.code {
			t.Fatalf("CodeFor(%v) = %q, want %q", tc.err, got, tc.code)
		}
	}
}
