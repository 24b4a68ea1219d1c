package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sekolahub/backend/internal/models"
)

// notifyChannel carries notification envelopes between the stores and
// every hub instance's subscriber.
const notifyChannel = "notify"

type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Notifications

// PublishNotification publishes an envelope on the notify channel. Every
// hub instance receives it and routes it to its local connections.
func (r *RedisClient) PublishNotification(n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	return r.client.Publish(r.ctx, notifyChannel, data).Err()
}

// SubscribeToNotifications subscribes to the notify channel
func (r *RedisClient) SubscribeToNotifications() *redis.PubSub {
	return r.client.Subscribe(r.ctx, notifyChannel)
}

// Unread counts

func unreadKey(tenantID, userID int64) string {
	return fmt.Sprintf("unread:%d:%d", tenantID, userID)
}

// SetUnreadCount caches a user's unread count for a short window
func (r *RedisClient) SetUnreadCount(tenantID, userID int64, count int) error {
	return r.client.Set(r.ctx, unreadKey(tenantID, userID), count, time.Minute).Err()
}

// GetUnreadCount returns the cached unread count; ok is false on a miss
func (r *RedisClient) GetUnreadCount(tenantID, userID int64) (int, bool, error) {
	val, err := r.client.Get(r.ctx, unreadKey(tenantID, userID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

// InvalidateUnreadCount drops the cached count after a state change
func (r *RedisClient) InvalidateUnreadCount(tenantID, userID int64) error {
	return r.client.Del(r.ctx, unreadKey(tenantID, userID)).Err()
}
