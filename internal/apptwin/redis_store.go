package apptwin

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps twin state in Redis so several twin processes can share
// accounts and jobs.
//
// Keys:
//
//	<prefix>user:<username>  JSON User
//	<prefix>job:seq          job id counter
//	<prefix>job:<id>         JSON Job
//	<prefix>jobs:<owner>     list of job ids, newest first
//	<prefix>jobs:active      set of non-terminal job ids
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. prefix defaults to "twin:".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "twin:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// OpenRedisStore parses a redis:// URL, connects and pings.
func OpenRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=apptwin.OpenRedisStore: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("op=apptwin.OpenRedisStore: ping: %w", err)
	}
	return NewRedisStore(rdb, ""), nil
}

// Ping checks Redis reachability.
func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// Client exposes the underlying client, e.g. for a shared rate limiter.
func (s *RedisStore) Client() redis.UniversalClient { return s.rdb }

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) userKey(name string) string { return s.prefix + "user:" + name }
func (s *RedisStore) jobKey(id int64) string     { return s.prefix + "job:" + strconv.FormatInt(id, 10) }
func (s *RedisStore) ownerKey(o string) string   { return s.prefix + "jobs:" + o }
func (s *RedisStore) activeKey() string          { return s.prefix + "jobs:active" }
func (s *RedisStore) seqKey() string             { return s.prefix + "job:seq" }

func (s *RedisStore) CreateUser(ctx context.Context, u User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("op=apptwin.RedisStore.CreateUser: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.userKey(u.Username), b, 0).Result()
	if err != nil {
		return fmt.Errorf("op=apptwin.RedisStore.CreateUser: %w", err)
	}
	if !ok {
		return ErrUserExists
	}
	return nil
}

func (s *RedisStore) GetUser(ctx context.Context, username string) (User, error) {
	b, err := s.rdb.Get(ctx, s.userKey(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("op=apptwin.RedisStore.GetUser: %w", err)
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return User{}, fmt.Errorf("op=apptwin.RedisStore.GetUser: %w", err)
	}
	return u, nil
}

func (s *RedisStore) CreateJob(ctx context.Context, j Job) (Job, error) {
	id, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return Job{}, fmt.Errorf("op=apptwin.RedisStore.CreateJob: %w", err)
	}
	j.ID = id
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.UpdatedAt = j.CreatedAt
	b, err := json.Marshal(j)
	if err != nil {
		return Job{}, fmt.Errorf("op=apptwin.RedisStore.CreateJob: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.jobKey(id), b, 0)
		p.LPush(ctx, s.ownerKey(j.Owner), id)
		if !j.Status.Terminal() {
			p.SAdd(ctx, s.activeKey(), id)
		}
		return nil
	})
	if err != nil {
		return Job{}, fmt.Errorf("op=apptwin.RedisStore.CreateJob: %w", err)
	}
	return j, nil
}

func (s *RedisStore) GetJob(ctx context.Context, id int64) (Job, error) {
	b, err := s.rdb.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("op=apptwin.RedisStore.GetJob: %w", err)
	}
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return Job{}, fmt.Errorf("op=apptwin.RedisStore.GetJob: %w", err)
	}
	return j, nil
}

func (s *RedisStore) UpdateJob(ctx context.Context, j Job) error {
	n, err := s.rdb.Exists(ctx, s.jobKey(j.ID)).Result()
	if err != nil {
		return fmt.Errorf("op=apptwin.RedisStore.UpdateJob: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("op=apptwin.RedisStore.UpdateJob: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.jobKey(j.ID), b, 0)
		if j.Status.Terminal() {
			p.SRem(ctx, s.activeKey(), j.ID)
		} else {
			p.SAdd(ctx, s.activeKey(), j.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("op=apptwin.RedisStore.UpdateJob: %w", err)
	}
	return nil
}

func (s *RedisStore) ListJobs(ctx context.Context, owner string) ([]Job, error) {
	ids, err := s.rdb.LRange(ctx, s.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("op=apptwin.RedisStore.ListJobs: %w", err)
	}
	return s.loadJobs(ctx, ids)
}

func (s *RedisStore) ActiveJobs(ctx context.Context) ([]Job, error) {
	ids, err := s.rdb.SMembers(ctx, s.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("op=apptwin.RedisStore.ActiveJobs: %w", err)
	}
	jobs, err := s.loadJobs(ctx, ids)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(jobs, func(a, b Job) int { return cmp.Compare(a.ID, b.ID) })
	return jobs, nil
}

func (s *RedisStore) loadJobs(ctx context.Context, ids []string) ([]Job, error) {
	out := make([]Job, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		j, err := s.GetJob(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}
