package data

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/testutil"
)

func TestRedisClaimRepo_ClaimOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	repo := NewRedisClaimRepoWithPrefix(client, "test:claim:")
	ctx := context.Background()

	won, err := repo.Claim(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Claim(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	ttl := client.TTL(ctx, "test:claim:job-1").Val()
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	released, err := repo.Release(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, released)

	won, err = repo.Claim(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	require.NoError(t, repo.Health(ctx))
}

func TestRedisClaimRepo_ConcurrentClaims(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	repo := NewRedisClaimRepo(client)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.Claim(ctx, "job-race", time.Minute)
			if assert.NoError(t, err) && won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisClaimRepo_EmptyKey(t *testing.T) {
	repo := NewRedisClaimRepo(nil)
	_, err := repo.Claim(context.Background(), "", time.Second)
	require.ErrorIs(t, err, ErrClaimKeyRequired)
	_, err = repo.Release(context.Background(), "")
	require.ErrorIs(t, err, ErrClaimKeyRequired)
}
