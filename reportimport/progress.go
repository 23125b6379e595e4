package reportimport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressStore keeps the last processed row index per job so a redelivered job resumes.
type ProgressStore interface {
	// Get returns 0 when the job has no stored progress.
	Get(ctx context.Context, jobID string) (int, error)
	Set(ctx context.Context, jobID string, index int) error
	Delete(ctx context.Context, jobID string) error
}

const progressKeyPrefix = "reportImport:progress:"

func ProgressKey(jobID string) string {
	return progressKeyPrefix + jobID
}

type RedisProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProgressStore stores cursors in redis; a zero ttl keeps them forever.
func NewRedisProgressStore(client *redis.Client, ttl time.Duration) *RedisProgressStore {
	return &RedisProgressStore{client: client, ttl: ttl}
}

func (s *RedisProgressStore) Get(ctx context.Context, jobID string) (int, error) {
	val, err := s.client.Get(ctx, ProgressKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	index, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("progress for job %s: %w", jobID, err)
	}
	return index, nil
}

func (s *RedisProgressStore) Set(ctx context.Context, jobID string, index int) error {
	return s.client.Set(ctx, ProgressKey(jobID), strconv.Itoa(index), s.ttl).Err()
}

func (s *RedisProgressStore) Delete(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, ProgressKey(jobID)).Err()
}

// MemoryProgressStore is a process-local ProgressStore.
type MemoryProgressStore struct {
	mu      sync.Mutex
	indexes map[string]int
}

func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{indexes: map[string]int{}}
}

func (s *MemoryProgressStore) Get(_ context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexes[jobID], nil
}

func (s *MemoryProgressStore) Set(_ context.Context, jobID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexes == nil {
		s.indexes = map[string]int{}
	}
	s.indexes[jobID] = index
	return nil
}

func (s *MemoryProgressStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, jobID)
	return nil
}
