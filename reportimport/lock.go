package reportimport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// Locker hands out named locks shared by every worker.
type Locker interface {
	// Obtain returns ErrJobLocked when another run holds key.
	Obtain(ctx context.Context, key string) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

// JobLockKey guards one job id against concurrent deliveries.
func JobLockKey(jobID string) string {
	return "reportImport:lock:job:" + jobID
}

// LockKey guards a distributor and reporting month.
func LockKey(d models.Distributor, reportingMonth string) string {
	if reportingMonth == "" {
		reportingMonth = "any"
	}
	return fmt.Sprintf("reportImport:lock:%s:%s", d, reportingMonth)
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewRedisLocker holds locks for ttl and refreshes them at half that interval until released.
func NewRedisLocker(client *redislock.Client, ttl time.Duration, logger logrus.FieldLogger) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrJobLocked
	}
	if err != nil {
		return nil, err
	}

	held := &redisLock{lock: lock, stop: make(chan struct{}), done: make(chan struct{})}
	go held.refresh(l.ttl, l.logger.WithField("lock_key", key))
	return held, nil
}

type redisLock struct {
	lock *redislock.Lock
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (h *redisLock) refresh(ttl time.Duration, logger logrus.FieldLogger) {
	defer close(h.done)
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/2)
			err := h.lock.Refresh(ctx, ttl, nil)
			cancel()
			if err != nil {
				logger.WithError(err).Warn("import lock refresh failed")
			}
		}
	}
}

func (h *redisLock) Release(ctx context.Context) error {
	h.once.Do(func() {
		close(h.stop)
		<-h.done
	})
	err := h.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
