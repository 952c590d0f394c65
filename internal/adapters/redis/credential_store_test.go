package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
)

// newTestRedis creates a Redis client for testing. Tests are skipped when no
// Redis is reachable.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client after ping error: %v", cerr)
		}
		t.Skipf("Redis not available for testing at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis client: %v", err)
		}
	})
	return client
}

func uniqueRef(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func TestCredentialStore_StoreAndResolve(t *testing.T) {
	client := newTestRedis(t)
	store := NewCredentialStore(client)
	ctx := context.Background()
	ref := uniqueRef(t)

	require.NoError(t, store.Store(ctx, ref, "oauth-token", time.Minute))
	defer func() {
		require.NoError(t, store.Delete(ctx, ref))
	}()

	credential, err := store.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "oauth-token", credential)
}

func TestCredentialStore_StoreValidation(t *testing.T) {
	client := newTestRedis(t)
	store := NewCredentialStore(client)
	ctx := context.Background()

	assert.Error(t, store.Store(ctx, "", "token", time.Minute))
	assert.Error(t, store.Store(ctx, "ref", "", time.Minute))
	assert.Error(t, store.Store(ctx, "ref", "token", 0))
}

func TestCredentialStore_ResolveMissingIsAuthError(t *testing.T) {
	client := newTestRedis(t)
	store := NewCredentialStore(client)
	ctx := context.Background()

	_, err := store.Resolve(ctx, uniqueRef(t))
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))

	_, err = store.Resolve(ctx, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
}

func TestCredentialStore_TTLExpiry(t *testing.T) {
	client := newTestRedis(t)
	store := NewCredentialStore(client)
	ctx := context.Background()
	ref := uniqueRef(t)

	require.NoError(t, store.Store(ctx, ref, "short-lived", 50*time.Millisecond))
	time.Sleep(100 * time.Millisecond)

	_, err := store.Resolve(ctx, ref)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
}

func TestCredentialStore_Delete(t *testing.T) {
	client := newTestRedis(t)
	store := NewCredentialStore(client)
	ctx := context.Background()
	ref := uniqueRef(t)

	require.NoError(t, store.Store(ctx, ref, "token", time.Minute))
	require.NoError(t, store.Delete(ctx, ref))

	_, err := store.Resolve(ctx, ref)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))

	// deleting an empty reference is a no-op
	require.NoError(t, store.Delete(ctx, ""))
}

func TestCredentialStore_CustomPrefix(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	ref := uniqueRef(t)

	a := NewCredentialStoreWithPrefix(client, "tenant-a:")
	b := NewCredentialStoreWithPrefix(client, "tenant-b:")

	require.NoError(t, a.Store(ctx, ref, "token-a", time.Minute))
	defer func() {
		require.NoError(t, a.Delete(ctx, ref))
	}()

	_, err := b.Resolve(ctx, ref)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
}
