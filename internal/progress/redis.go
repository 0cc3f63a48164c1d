package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rpattn/reiteradas/internal/domain"
)

// RedisConfig configures the Redis status tracker.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	Database int           `mapstructure:"database"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PoolSize int           `mapstructure:"pool_size"`
}

// DefaultRedisConfig keeps statuses for a day.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "reiteradas:uploads:",
		TTL:      24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisTracker stores one JSON status per upload so that every server
// instance can answer status polls.
type RedisTracker struct {
	cfg    RedisConfig
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(ctx context.Context, cfg RedisConfig) (*RedisTracker, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisTrackerWithClient(client, cfg), nil
}

// NewRedisTrackerWithClient wraps an existing client.
func NewRedisTrackerWithClient(client redis.UniversalClient, cfg RedisConfig) *RedisTracker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RedisTracker{cfg: cfg, client: client, now: time.Now}
}

// Close releases the client.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

func (t *RedisTracker) key(uploadID string) string {
	return t.cfg.Prefix + uploadID
}

func (t *RedisTracker) Start(ctx context.Context, uploadID string) error {
	return t.save(ctx, apply(domain.UploadStatus{}, uploadID, t.now(), nil, nil))
}

func (t *RedisTracker) Update(ctx context.Context, uploadID string, p domain.Progress) error {
	status, err := t.load(ctx, uploadID)
	if err != nil && !errors.Is(err, ErrUnknownUpload) {
		return err
	}
	return t.save(ctx, apply(status, uploadID, t.now(), &p, nil))
}

func (t *RedisTracker) Finish(ctx context.Context, uploadID string, outcome domain.IngestionOutcome) error {
	status, err := t.load(ctx, uploadID)
	if err != nil && !errors.Is(err, ErrUnknownUpload) {
		return err
	}
	return t.save(ctx, apply(status, uploadID, t.now(), nil, &outcome))
}

func (t *RedisTracker) Get(ctx context.Context, uploadID string) (domain.UploadStatus, error) {
	return t.load(ctx, uploadID)
}

func (t *RedisTracker) load(ctx context.Context, uploadID string) (domain.UploadStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	data, err := t.client.Get(ctx, t.key(uploadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.UploadStatus{}, ErrUnknownUpload
	}
	if err != nil {
		return domain.UploadStatus{}, fmt.Errorf("failed to read upload status: %w", err)
	}
	return decodeStatus(data)
}

func (t *RedisTracker) save(ctx context.Context, status domain.UploadStatus) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	data, err := encodeStatus(status)
	if err != nil {
		return err
	}
	if err := t.client.Set(ctx, t.key(status.UploadID), data, t.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to write upload status: %w", err)
	}
	return nil
}

func encodeStatus(status domain.UploadStatus) ([]byte, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload status: %w", err)
	}
	return data, nil
}

func decodeStatus(data []byte) (domain.UploadStatus, error) {
	var status domain.UploadStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.UploadStatus{}, fmt.Errorf("failed to unmarshal upload status: %w", err)
	}
	return status, nil
}
