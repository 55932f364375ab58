// Package tokencache caches verified token identities in Redis so repeated
// requests with the same bearer token skip re-verification.
package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"compass/api/internal/auth"
	"github.com/redis/go-redis/v9"
)

// cachedIdentity is the value stored for each verified token
type cachedIdentity struct {
	SubjectID  string    `json:"subject_id"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// Cache wraps a TokenVerifier with a Redis lookaside cache keyed by token
// hash. Verification failures are never cached, and Redis errors fall
// through to direct verification.
type Cache struct {
	client   *redis.Client
	verifier auth.TokenVerifier
	prefix   string
	ttl      time.Duration
}

// New creates a Redis-backed verification cache
func New(redisURL string, verifier auth.TokenVerifier, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, verifier, ttl), nil
}

// NewWithClient creates a cache from an existing Redis client
func NewWithClient(client *redis.Client, verifier auth.TokenVerifier, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		client:   client,
		verifier: verifier,
		prefix:   "idtok:",
		ttl:      ttl,
	}
}

func (c *Cache) key(token string) string {
	return c.prefix + auth.HashToken(token)
}

// Verify returns the cached identity for the token if present, otherwise
// delegates to the wrapped verifier and stores the result. An entry never
// outlives the token's own expiry, so a warm cache and a cold one answer
// the same for the same token.
func (c *Cache) Verify(ctx context.Context, token string) (auth.Identity, error) {
	key := c.key(token)
	jsonData, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var cached cachedIdentity
		if unmarshalErr := json.Unmarshal([]byte(jsonData), &cached); unmarshalErr != nil {
			log.Printf("tokencache: corrupt cache entry, reverifying")
		} else if !cached.ExpiresAt.IsZero() && !time.Now().Before(cached.ExpiresAt) {
			// Entry outlived its token; let the verifier report the expiry.
		} else {
			return auth.Identity{
				SubjectID: cached.SubjectID,
				Email:     cached.Email,
				Name:      cached.Name,
			}, nil
		}
	} else if err != redis.Nil {
		log.Printf("tokencache: redis lookup failed, reverifying: %v", err)
	}

	ident, err := c.verifier.Verify(ctx, token)
	if err != nil {
		return auth.Identity{}, err
	}

	ttl := c.ttl
	entry := cachedIdentity{
		SubjectID:  ident.SubjectID,
		Email:      ident.Email,
		Name:       ident.Name,
		VerifiedAt: time.Now(),
	}
	if exp, ok := auth.TokenExpiry(token); ok {
		remaining := time.Until(exp)
		if remaining <= 0 {
			return ident, nil
		}
		if remaining < ttl {
			ttl = remaining
		}
		entry.ExpiresAt = exp
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return ident, nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("tokencache: cache write failed: %v", err)
	}

	return ident, nil
}

// Invalidate drops a token from the cache
func (c *Cache) Invalidate(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, c.key(token)).Err(); err != nil {
		return fmt.Errorf("invalidate token: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
