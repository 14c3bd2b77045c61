package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ResolveSession maps a bearer token to a user id. Sessions are written
// by the auth collaborator; this side only reads them.
func (c *Client) ResolveSession(ctx context.Context, token string) (string, bool, error) {
	userID, err := c.client.Get(ctx, fmt.Sprintf("session:%s", token)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve session: %w", err)
	}
	return userID, true, nil
}

// TrainingConsent reads the plan-level consent flag maintained by the
// account service. Absence means no consent.
func (c *Client) TrainingConsent(ctx context.Context, userID string) (bool, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("plan:training-consent:%s", userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read training consent: %w", err)
	}
	return val == "1", nil
}

// GetEligibility and SetEligibility cache training-consent lookups.
func (c *Client) GetEligibility(ctx context.Context, userID string) (bool, bool, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("training:eligible:%s", userID)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to get eligibility: %w", err)
	}
	return val == "1", true, nil
}

func (c *Client) SetEligibility(ctx context.Context, userID string, eligible bool, ttl time.Duration) error {
	val := "0"
	if eligible {
		val = "1"
	}
	if err := c.client.Set(ctx, fmt.Sprintf("training:eligible:%s", userID), val, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set eligibility: %w", err)
	}
	return nil
}

// SetAnswer and GetAnswer cache full assistant responses keyed by a
// request hash.
func (c *Client) SetAnswer(ctx context.Context, requestHash string, response interface{}, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := c.client.Set(ctx, fmt.Sprintf("answer:%s", requestHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set answer cache: %w", err)
	}

	logger.Debug("Answer cached", zap.String("request_hash", requestHash), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetAnswer(ctx context.Context, requestHash string, response interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("answer:%s", requestHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get answer cache: %w", err)
	}

	if err := json.Unmarshal(data, response); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	logger.Debug("Answer cache hit", zap.String("request_hash", requestHash))
	return true, nil
}
