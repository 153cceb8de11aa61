package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
)

// DefaultTemplateTTL bounds how long a template edit can go unseen
const DefaultTemplateTTL = 5 * time.Minute

// TemplateCache is a read-through Redis cache in front of a ServiceTemplateLookup.
// Redis failures never fail a lookup; the source is consulted instead.
type TemplateCache struct {
	source port.ServiceTemplateLookup
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTemplateCache wraps source with a Redis cache
func NewTemplateCache(source port.ServiceTemplateLookup, client *redis.Client, ttl time.Duration, logger *zap.Logger) *TemplateCache {
	if ttl <= 0 {
		ttl = DefaultTemplateTTL
	}
	return &TemplateCache{
		source: source,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

func templateKey(id int64) string {
	return fmt.Sprintf("svc_tmpl:%d", id)
}

// GetServiceTemplate implements port.ServiceTemplateLookup
func (c *TemplateCache) GetServiceTemplate(ctx context.Context, id int64) (*entity.ServiceTemplate, error) {
	key := templateKey(id)

	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var tmpl entity.ServiceTemplate
		if jsonErr := json.Unmarshal([]byte(val), &tmpl); jsonErr == nil {
			return &tmpl, nil
		}
		c.logger.Warn("Dropping unreadable cached template", zap.String("key", key))
		c.redis.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Template cache read failed", zap.String("key", key), zap.Error(err))
	}

	tmpl, err := c.source.GetServiceTemplate(ctx, id)
	if err != nil || tmpl == nil {
		return tmpl, err
	}

	data, err := json.Marshal(tmpl)
	if err != nil {
		return tmpl, nil
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Template cache write failed", zap.String("key", key), zap.Error(err))
	}

	return tmpl, nil
}

// NewClient creates the Redis client used by the cache
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// Ping checks the Redis connection
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
