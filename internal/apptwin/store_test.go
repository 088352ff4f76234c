package apptwin

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
)

func newMiniRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "")
}

func TestStores(t *testing.T) {
	for name, newStore := range map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"redis":  func(t *testing.T) Store { return newMiniRedisStore(t) },
	} {
		t.Run(name, func(t *testing.T) {
			t.Run("users", func(t *testing.T) { testStoreUsers(t, newStore(t)) })
			t.Run("jobs", func(t *testing.T) { testStoreJobs(t, newStore(t)) })
		})
	}
}

func testStoreUsers(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User{Username: "alice", PasswordHash: "h"}))
	assert.ErrorIs(t, s.CreateUser(ctx, User{Username: "alice", PasswordHash: "other"}), ErrUserExists)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "h", u.PasswordHash)

	_, err = s.GetUser(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testStoreJobs(t *testing.T, s Store) {
	ctx := context.Background()
	j1, err := s.CreateJob(ctx, Job{Owner: "alice", Status: domain.JobPending, InputSource: "upload:a.txt", Content: []byte("a")})
	require.NoError(t, err)
	j2, err := s.CreateJob(ctx, Job{Owner: "alice", Status: domain.JobPending, InputSource: "https://example.com"})
	require.NoError(t, err)
	j3, err := s.CreateJob(ctx, Job{Owner: "bob", Status: domain.JobPending})
	require.NoError(t, err)
	assert.Greater(t, j2.ID, j1.ID)
	assert.Greater(t, j3.ID, j2.ID)

	got, err := s.GetJob(ctx, j1.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got.Content)
	assert.Equal(t, "upload:a.txt", got.InputSource)

	_, err = s.GetJob(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListJobs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, j2.ID, list[0].ID, "newest first")
	assert.Equal(t, j1.ID, list[1].ID)

	active, err := s.ActiveJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	got.Status = domain.JobCompleted
	got.Features = map[string]int{FeatureEmail: 2}
	require.NoError(t, s.UpdateJob(ctx, got))

	active, err = s.ActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, j2.ID, active[0].ID, "oldest first")

	got, err = s.GetJob(ctx, j1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, 2, got.Features[FeatureEmail])

	assert.ErrorIs(t, s.UpdateJob(ctx, Job{ID: 9999}), ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	j, err := s.CreateJob(ctx, Job{Owner: "a", Content: []byte("abc")})
	require.NoError(t, err)
	j.Content[0] = 'X'
	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got.Content))
}

func TestRedisStore_Ping(t *testing.T) {
	s := newMiniRedisStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
