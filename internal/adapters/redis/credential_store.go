// Package redis provides Redis-based adapters for the tweetvault system.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
)

// CredentialStore resolves sink credentials from opaque references. Tokens
// live only in Redis under a TTL; task rows carry the reference, never the
// token itself.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
}

// NewCredentialStore creates a new Redis-based credential store.
func NewCredentialStore(client redis.UniversalClient) *CredentialStore {
	return &CredentialStore{
		client: client,
		prefix: "credential:",
	}
}

// NewCredentialStoreWithPrefix creates a credential store with a custom key prefix.
func NewCredentialStoreWithPrefix(client redis.UniversalClient, prefix string) *CredentialStore {
	return &CredentialStore{
		client: client,
		prefix: prefix,
	}
}

// Store saves a credential under the given reference with a TTL.
func (s *CredentialStore) Store(ctx context.Context, ref, credential string, ttl time.Duration) error {
	if ref == "" {
		return errors.New("credential reference cannot be empty")
	}
	if credential == "" {
		return errors.New("credential cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("credential TTL must be positive")
	}

	return s.client.Set(ctx, s.prefix+ref, credential, ttl).Err()
}

// Resolve returns the credential stored under the given reference. A missing
// or expired reference surfaces as an auth error so the task fails cleanly
// rather than retrying with nothing.
func (s *CredentialStore) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", apperrors.Auth("credential reference is empty")
	}

	credential, err := s.client.Get(ctx, s.prefix+ref).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.Auth("credential reference not found or expired")
		}
		return "", fmt.Errorf("redis get credential: %w", err)
	}
	return credential, nil
}

// Delete removes a credential reference.
func (s *CredentialStore) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+ref).Err()
}
