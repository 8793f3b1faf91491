package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"macagent/pkg/resilience"
)

const (
	apiKeyPrefix    = "macagent:apikey:"
	apiKeySecretLen = 32
)

// KeyStore validates API keys presented by clients
type KeyStore interface {
	ValidateKey(ctx context.Context, key string) (*KeyInfo, error)
}

// KeyInfo describes the owner of an API key
type KeyInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	KeyHash   string `json:"key_hash"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // 0 = never expires
}

// StaticKeyStore accepts exactly one key, the one given on the command line.
type StaticKeyStore struct {
	hash [sha256.Size]byte
}

func NewStaticKeyStore(key string) *StaticKeyStore {
	return &StaticKeyStore{hash: sha256.Sum256([]byte(key))}
}

// ValidateKey compares hashes in constant time so the key length does not leak.
func (s *StaticKeyStore) ValidateKey(_ context.Context, key string) (*KeyInfo, error) {
	if key == "" {
		return nil, ErrMissingToken
	}
	got := sha256.Sum256([]byte(key))
	if subtle.ConstantTimeCompare(got[:], s.hash[:]) != 1 {
		return nil, ErrInvalidToken
	}
	return &KeyInfo{ID: "static", Name: "command-line"}, nil
}

// RedisKeyStore keeps additional API keys in Redis, stored by SHA-256 hash only.
// Lookups go through a breaker so an unreachable Redis fails fast.
type RedisKeyStore struct {
	client  *redis.Client
	breaker *resilience.Breaker
}

func NewRedisKeyStore(client *redis.Client) *RedisKeyStore {
	cfg := resilience.DefaultBreakerConfig()
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, redis.Nil) }
	return &RedisKeyStore{
		client:  client,
		breaker: resilience.NewBreaker("redis-keystore", cfg),
	}
}

// ValidateKey looks up the key by hash and checks its expiry
func (s *RedisKeyStore) ValidateKey(ctx context.Context, key string) (*KeyInfo, error) {
	if key == "" {
		return nil, ErrMissingToken
	}
	var data []byte
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		var getErr error
		data, getErr = s.client.Get(ctx, apiKeyPrefix+hashKey(key)).Bytes()
		return getErr
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to lookup key: %w", err)
	}

	var info KeyInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key info: %w", err)
	}
	if info.ExpiresAt > 0 && info.ExpiresAt < time.Now().Unix() {
		return nil, ErrExpiredToken
	}
	return &info, nil
}

// CreateKey stores a new key and returns its plaintext, which is never stored.
func (s *RedisKeyStore) CreateKey(ctx context.Context, name string, ttl time.Duration) (string, error) {
	secret := make([]byte, apiKeySecretLen)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	plainKey := "sk_" + hex.EncodeToString(secret)

	idBytes := make([]byte, 8)
	_, _ = rand.Read(idBytes)

	info := KeyInfo{
		ID:        "key_" + hex.EncodeToString(idBytes),
		Name:      name,
		KeyHash:   hashKey(plainKey),
		CreatedAt: time.Now().Unix(),
	}
	if ttl > 0 {
		info.ExpiresAt = time.Now().Add(ttl).Unix()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal key info: %w", err)
	}
	if err := s.client.Set(ctx, apiKeyPrefix+info.KeyHash, data, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store key: %w", err)
	}
	return plainKey, nil
}

// ChainKeyStore accepts a key if any of its stores does.
type ChainKeyStore []KeyStore

func (c ChainKeyStore) ValidateKey(ctx context.Context, key string) (*KeyInfo, error) {
	err := ErrInvalidToken
	for _, store := range c {
		info, storeErr := store.ValidateKey(ctx, key)
		if storeErr == nil {
			return info, nil
		}
		err = storeErr
	}
	return nil, err
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
