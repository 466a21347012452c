package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/relaydesk/backend/pkg/xredis"
)

// InMemoryRedis implements xredis.Client against a process-local map. Lock
// semantics match the real client: set-if-absent with TTL, owner-checked
// release.
type InMemoryRedis struct {
	mutex   sync.Mutex
	values  map[string]string
	expires map[string]time.Time
}

func NewInMemoryRedis() *InMemoryRedis {
	return &InMemoryRedis{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
	}
}

func (r *InMemoryRedis) Exist(ctx context.Context, key string) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, ok := r.get(key)
	return ok, nil
}

func (r *InMemoryRedis) Get(ctx context.Context, key string) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	value, ok := r.get(key)
	if !ok {
		return "", xredis.Nil
	}

	return value, nil
}

func (r *InMemoryRedis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.set(key, value, ttl)
	return nil
}

func (r *InMemoryRedis) Del(ctx context.Context, keys ...string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, key := range keys {
		delete(r.values, key)
		delete(r.expires, key)
	}

	return nil
}

func (r *InMemoryRedis) AcquireLock(
	ctx context.Context, key, owner string, ttl time.Duration,
) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.get(key); ok {
		return false, nil
	}

	r.set(key, owner, ttl)
	return true, nil
}

func (r *InMemoryRedis) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if value, ok := r.get(key); !ok || value != owner {
		return false, nil
	}

	delete(r.values, key)
	delete(r.expires, key)
	return true, nil
}

func (r *InMemoryRedis) get(key string) (string, bool) {
	if expiry, ok := r.expires[key]; ok && time.Now().After(expiry) {
		delete(r.values, key)
		delete(r.expires, key)
		return "", false
	}

	value, ok := r.values[key]
	return value, ok
}

func (r *InMemoryRedis) set(key, value string, ttl time.Duration) {
	r.values[key] = value
	if ttl > 0 {
		r.expires[key] = time.Now().Add(ttl)
	} else {
		delete(r.expires, key)
	}
}

// MockRedisClient overrides single methods for failure-path tests.
type MockRedisClient struct {
	ExistFunc       func(ctx context.Context, key string) (bool, error)
	GetFunc         func(ctx context.Context, key string) (string, error)
	SetFunc         func(ctx context.Context, key, value string, ttl time.Duration) error
	DelFunc         func(ctx context.Context, key ...string) error
	AcquireLockFunc func(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLockFunc func(ctx context.Context, key, owner string) (bool, error)
}

func (m *MockRedisClient) Exist(ctx context.Context, key string) (bool, error) {
	if m.ExistFunc != nil {
		return m.ExistFunc(ctx, key)
	}

	return false, nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}

	return "", xredis.Nil
}

func (m *MockRedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}

	return nil
}

func (m *MockRedisClient) Del(ctx context.Context, key ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, key...)
	}

	return nil
}

func (m *MockRedisClient) AcquireLock(
	ctx context.Context, key, owner string, ttl time.Duration,
) (bool, error) {
	if m.AcquireLockFunc != nil {
		return m.AcquireLockFunc(ctx, key, owner, ttl)
	}

	return true, nil
}

func (m *MockRedisClient) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	if m.ReleaseLockFunc != nil {
		return m.ReleaseLockFunc(ctx, key, owner)
	}

	return true, nil
}
