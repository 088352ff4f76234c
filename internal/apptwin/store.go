package apptwin

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Store persists twin users and jobs.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, username string) (User, error)
	CreateJob(ctx context.Context, j Job) (Job, error)
	GetJob(ctx context.Context, id int64) (Job, error)
	UpdateJob(ctx context.Context, j Job) error
	// ListJobs returns the owner's jobs, newest first.
	ListJobs(ctx context.Context, owner string) ([]Job, error)
	// ActiveJobs returns every job not yet in a terminal status, oldest first.
	ActiveJobs(ctx context.Context) ([]Job, error)
}

// MemoryStore keeps all state in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]User
	jobs   map[int64]Job
	nextID int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User), jobs: make(map[int64]Job)}
}

func (m *MemoryStore) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return ErrUserExists
	}
	m.users[u.Username] = u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) CreateJob(_ context.Context, j Job) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	j.ID = m.nextID
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.UpdatedAt = j.CreatedAt
	m.jobs[j.ID] = cloneJob(j)
	return j, nil
}

func (m *MemoryStore) GetJob(_ context.Context, id int64) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, j Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return ErrNotFound
	}
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

func (m *MemoryStore) ListJobs(_ context.Context, owner string) ([]Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Job
	for _, j := range m.jobs {
		if j.Owner == owner {
			out = append(out, cloneJob(j))
		}
	}
	slices.SortFunc(out, func(a, b Job) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (m *MemoryStore) ActiveJobs(_ context.Context) ([]Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Job
	for _, j := range m.jobs {
		if !j.Status.Terminal() {
			out = append(out, cloneJob(j))
		}
	}
	slices.SortFunc(out, func(a, b Job) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func cloneJob(j Job) Job {
	j.Content = slices.Clone(j.Content)
	j.Features = maps.Clone(j.Features)
	return j
}
