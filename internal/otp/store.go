package otp

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrNoCode is returned when no unexpired code exists for an address.
var ErrNoCode = errors.New("otp: no code")

// Store keeps pending codes and the verified flag, both with a TTL.
type Store interface {
	SaveCode(ctx context.Context, email, code string, ttl time.Duration) error
	GetCode(ctx context.Context, email string) (string, error)
	DeleteCode(ctx context.Context, email string) error
	MarkVerified(ctx context.Context, email string, ttl time.Duration) error
	IsVerified(ctx context.Context, email string) (bool, error)
}

// RedisStore keeps codes in Redis and lets key expiry drop stale ones.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) codeKey(email string) string     { return s.prefix + "otp:" + email }
func (s *RedisStore) verifiedKey(email string) string { return s.prefix + "otp_verified:" + email }

func (s *RedisStore) SaveCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.client.Set(ctx, s.codeKey(email), code, ttl).Err()
}

func (s *RedisStore) GetCode(ctx context.Context, email string) (string, error) {
	value, err := s.client.Get(ctx, s.codeKey(email)).Result()
	if err == redis.Nil {
		return "", ErrNoCode
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *RedisStore) DeleteCode(ctx context.Context, email string) error {
	return s.client.Del(ctx, s.codeKey(email)).Err()
}

func (s *RedisStore) MarkVerified(ctx context.Context, email string, ttl time.Duration) error {
	return s.client.Set(ctx, s.verifiedKey(email), "1", ttl).Err()
}

func (s *RedisStore) IsVerified(ctx context.Context, email string) (bool, error) {
	n, err := s.client.Exists(ctx, s.verifiedKey(email)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryStore keeps codes in process. A janitor evicts expired entries.
type MemoryStore struct {
	codes    *cache.Cache
	verified *cache.Cache
}

// NewMemoryStore creates an in-memory store whose janitor runs every
// cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		codes:    cache.New(cache.NoExpiration, cleanupInterval),
		verified: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (s *MemoryStore) SaveCode(_ context.Context, email, code string, ttl time.Duration) error {
	s.codes.Set(email, code, ttl)
	return nil
}

func (s *MemoryStore) GetCode(_ context.Context, email string) (string, error) {
	v, ok := s.codes.Get(email)
	if !ok {
		return "", ErrNoCode
	}
	return v.(string), nil
}

func (s *MemoryStore) DeleteCode(_ context.Context, email string) error {
	s.codes.Delete(email)
	return nil
}

func (s *MemoryStore) MarkVerified(_ context.Context, email string, ttl time.Duration) error {
	s.verified.Set(email, true, ttl)
	return nil
}

func (s *MemoryStore) IsVerified(_ context.Context, email string) (bool, error) {
	_, ok := s.verified.Get(email)
	return ok, nil
}
