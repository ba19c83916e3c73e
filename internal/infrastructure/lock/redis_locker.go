package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// ErrLockTimeout is returned when the lock could not be taken within the wait
// budget. It matches domainwf.ErrLocked.
var ErrLockTimeout = fmt.Errorf("patient lock wait exceeded: %w", domainwf.ErrLocked)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Config holds Redis lock settings
type Config struct {
	KeyPrefix    string
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

// RedisLocker serializes transitions per patient across processes
type RedisLocker struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger
}

// NewRedisLocker creates a Redis-backed patient lock
func NewRedisLocker(client *redis.Client, cfg Config, logger *zap.Logger) *RedisLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "workflow:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, cfg: cfg, logger: logger}
}

// Lock implements port.PatientLocker
func (l *RedisLocker) Lock(ctx context.Context, patientID string) (func(), error) {
	key := l.cfg.KeyPrefix + patientID
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Wait)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil && ctx.Err() == nil {
			l.logger.Error("Failed to acquire patient lock", zap.String("patient_id", patientID), zap.Error(err))
			return nil, fmt.Errorf("acquire lock for %s: %w", patientID, err)
		}
		if ok {
			return func() { l.release(key, token, patientID) }, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, patientID)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(key, token, patientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.logger.Error("Failed to release patient lock", zap.String("patient_id", patientID), zap.Error(err))
		return
	}
	if n == 0 {
		l.logger.Warn("Patient lock expired before release", zap.String("patient_id", patientID))
	}
}

// Verify interface compliance
var _ port.PatientLocker = (*RedisLocker)(nil)
