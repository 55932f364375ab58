package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"compass/api/internal/auth"
	"github.com/alicebob/miniredis/v2"
)

type countingVerifier struct {
	calls int
	ident auth.Identity
	err   error
}

func (v *countingVerifier) Verify(context.Context, string) (auth.Identity, error) {
	v.calls++
	return v.ident, v.err
}

func setupTestCache(t *testing.T, verifier auth.TokenVerifier) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	cache, err := New("redis://"+s.Addr(), verifier, time.Minute)
	if err != nil {
		t.Fatalf("failed to create token cache: %v", err)
	}
	return cache, s
}

func TestVerifyCachesIdentity(t *testing.T) {
	inner := &countingVerifier{ident: auth.Identity{SubjectID: "subject-1", Email: "avery@example.com", Name: "Avery"}}
	cache, s := setupTestCache(t, inner)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()

	first, err := cache.Verify(ctx, "token-abc")
	if err != nil {
		t.Fatalf("first Verify failed: %v", err)
	}
	second, err := cache.Verify(ctx, "token-abc")
	if err != nil {
		t.Fatalf("second Verify failed: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("expected 1 inner verification, got %d", inner.calls)
	}
	if first != second {
		t.Errorf("cached identity %+v differs from verified %+v", second, first)
	}
	if second.SubjectID != "subject-1" || second.Email != "avery@example.com" {
		t.Errorf("unexpected identity %+v", second)
	}
}

func TestVerifyDoesNotCacheFailures(t *testing.T) {
	inner := &countingVerifier{err: auth.ErrInvalidToken}
	cache, s := setupTestCache(t, inner)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.Verify(ctx, "bad-token"); !errors.Is(err, auth.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("expected failures to bypass cache, inner calls = %d", inner.calls)
	}
}

func TestVerifyReverifiesAfterTTL(t *testing.T) {
	inner := &countingVerifier{ident: auth.Identity{SubjectID: "subject-2"}}
	s := miniredis.RunT(t)
	defer s.Close()
	cache, err := New("redis://"+s.Addr(), inner, time.Second)
	if err != nil {
		t.Fatalf("failed to create token cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if _, err := cache.Verify(ctx, "token-ttl"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	if _, err := cache.Verify(ctx, "token-ttl"); err != nil {
		t.Fatalf("Verify after expiry failed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected reverification after TTL, inner calls = %d", inner.calls)
	}
}

func TestVerifyRejectsExpiredTokenDespiteWarmEntry(t *testing.T) {
	secret := []byte("cache-secret")
	s := miniredis.RunT(t)
	defer s.Close()
	cache, err := New("redis://"+s.Addr(), auth.NewVerifier(secret), time.Minute)
	if err != nil {
		t.Fatalf("failed to create token cache: %v", err)
	}
	defer cache.Close()

	token, err := auth.IssueToken(secret, auth.Claims{Sub: "subject-exp", Exp: time.Now().Add(-time.Second).Unix()})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	// Simulate an entry written while the token was still valid.
	entry, err := json.Marshal(cachedIdentity{
		SubjectID:  "subject-exp",
		VerifiedAt: time.Now().Add(-time.Minute),
		ExpiresAt:  time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("marshal cache entry: %v", err)
	}
	if err := s.Set(cache.key(token), string(entry)); err != nil {
		t.Fatalf("seed cache entry: %v", err)
	}

	if _, err := cache.Verify(context.Background(), token); !errors.Is(err, auth.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken for expired token, got %v", err)
	}
}

func TestVerifyCapsEntryLifetimeAtTokenExpiry(t *testing.T) {
	secret := []byte("cache-secret")
	s := miniredis.RunT(t)
	defer s.Close()
	cache, err := New("redis://"+s.Addr(), auth.NewVerifier(secret), 10*time.Minute)
	if err != nil {
		t.Fatalf("failed to create token cache: %v", err)
	}
	defer cache.Close()

	token, err := auth.IssueToken(secret, auth.Claims{Sub: "subject-cap", Exp: time.Now().Add(30 * time.Second).Unix()})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := cache.Verify(context.Background(), token); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	ttl := s.TTL(cache.key(token))
	if ttl <= 0 || ttl > 30*time.Second {
		t.Errorf("expected entry TTL bounded by token expiry, got %v", ttl)
	}
}

func TestInvalidateDropsEntry(t *testing.T) {
	inner := &countingVerifier{ident: auth.Identity{SubjectID: "subject-3"}}
	cache, s := setupTestCache(t, inner)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := cache.Verify(ctx, "token-inv"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := cache.Invalidate(ctx, "token-inv"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := cache.Verify(ctx, "token-inv"); err != nil {
		t.Fatalf("Verify after invalidate failed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected reverification after invalidate, inner calls = %d", inner.calls)
	}
}

func TestVerifyFallsThroughWhenRedisDown(t *testing.T) {
	inner := &countingVerifier{ident: auth.Identity{SubjectID: "subject-4"}}
	cache, s := setupTestCache(t, inner)
	defer cache.Close()

	s.Close()

	ident, err := cache.Verify(context.Background(), "token-down")
	if err != nil {
		t.Fatalf("expected fall-through verification, got %v", err)
	}
	if ident.SubjectID != "subject-4" {
		t.Errorf("unexpected identity %+v", ident)
	}
}
