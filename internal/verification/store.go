// Package verification keeps one-time verification codes in Redis with a
// per-code TTL, so codes expire on their own instead of accumulating in
// process memory.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeNotFound = errors.New("no verification code found for this email")
	ErrCodeMismatch = errors.New("invalid verification code")
)

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

func codeKey(email string) string {
	return "verification:code:" + strings.ToLower(strings.TrimSpace(email))
}

// Issue generates a six digit code and stores it under the email with the
// configured TTL, returning the code for delivery. Issuing again replaces
// any outstanding code.
func (s *Store) Issue(ctx context.Context, email string) (string, error) {
	code := fmt.Sprintf("%06d", rand.IntN(1000000))

	if err := s.client.Set(ctx, codeKey(email), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}
	return code, nil
}

// Confirm checks the submitted code against the stored one and consumes it
// on success, so a code verifies at most once.
func (s *Store) Confirm(ctx context.Context, email, code string) error {
	saved, err := s.client.Get(ctx, codeKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeNotFound
	}
	if err != nil {
		return fmt.Errorf("load verification code: %w", err)
	}

	if saved != code {
		return ErrCodeMismatch
	}

	if err := s.client.Del(ctx, codeKey(email)).Err(); err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	return nil
}
