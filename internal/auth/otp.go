package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeDigits         = 6
	defaultCooldown    = 30 * time.Second
	defaultMaxAttempts = 5
)

// OTPStore keeps one pending login code per phone in Redis.
type OTPStore struct {
	client      redis.Cmdable
	ttl         time.Duration
	cooldown    time.Duration
	maxAttempts int64
}

func NewOTPStore(client redis.Cmdable, ttl time.Duration) *OTPStore {
	return &OTPStore{
		client:      client,
		ttl:         ttl,
		cooldown:    defaultCooldown,
		maxAttempts: defaultMaxAttempts,
	}
}

func otpKey(phone string) string      { return "otp:" + phone }
func cooldownKey(phone string) string { return "otp:cooldown:" + phone }

// Issue creates a new code for phone, replacing any pending one.
func (s *OTPStore) Issue(ctx context.Context, phone string) (string, error) {
	ok, err := s.client.SetNX(ctx, cooldownKey(phone), 1, s.cooldown).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return "", ErrTooManyRequests
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, otpKey(phone))
		pipe.HSet(ctx, otpKey(phone), "code", code, "attempts", 0)
		pipe.Expire(ctx, otpKey(phone), s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis store code failed: %w", err)
	}
	return code, nil
}

// Check consumes the pending code on a match. Wrong guesses count toward
// maxAttempts, after which the code is discarded.
func (s *OTPStore) Check(ctx context.Context, phone, code string) error {
	key := otpKey(phone)
	stored, err := s.client.HGet(ctx, key, "code").Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("redis get code failed: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete code failed: %w", err)
		}
		return nil
	}

	attempts, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return fmt.Errorf("redis count attempt failed: %w", err)
	}
	if attempts >= s.maxAttempts {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete code failed: %w", err)
		}
	}
	return ErrInvalidCode
}

func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := strconv.FormatInt(n.Int64(), 10)
	for len(code) < codeDigits {
		code = "0" + code
	}
	return code, nil
}

// Sender delivers login codes to a phone.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log instead of sending an SMS.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) SendOTP(ctx context.Context, phone, code string) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "SMS SENT", "phone", phone, "code", code)
	return nil
}
