package cdrspool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/kilianp07/roamsync/core/model"
)

// RedisConfig configures the Redis spool.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// Prefix namespaces the keys, default "roamsync".
	Prefix string `json:"prefix"`
}

// RedisSpool keeps spooled records in a hash per provider, ordered by a
// sorted set scored with the first save time.
type RedisSpool struct {
	client redis.Cmdable
	closer func() error
	prefix string
}

// NewRedisSpool connects to the configured Redis server.
func NewRedisSpool(cfg RedisConfig) (*RedisSpool, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis spool: addr required")
	}
	c := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis spool ping %s: %w", cfg.Addr, err)
	}
	s := NewRedisSpoolWithClient(c, cfg.Prefix)
	s.closer = c.Close
	return s, nil
}

// NewRedisSpoolWithClient wraps an existing client. Close does not close it.
func NewRedisSpoolWithClient(c redis.Cmdable, prefix string) *RedisSpool {
	if prefix == "" {
		prefix = "roamsync"
	}
	return &RedisSpool{client: c, prefix: prefix}
}

func (s *RedisSpool) recordsKey(provider string) string {
	return fmt.Sprintf("%s:cdr:%s:records", s.prefix, provider)
}

func (s *RedisSpool) orderKey(provider string) string {
	return fmt.Sprintf("%s:cdr:%s:order", s.prefix, provider)
}

// Save stores cdr. A record with the same session id keeps its position.
func (s *RedisSpool) Save(ctx context.Context, provider string, cdr model.ChargeDetailRecord) error {
	b, err := json.Marshal(cdr)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.recordsKey(provider), cdr.SessionID, b)
		p.ZAddNX(ctx, s.orderKey(provider), redis.Z{Score: float64(time.Now().UnixNano()), Member: cdr.SessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("spool %s/%s: %w", provider, cdr.SessionID, err)
	}
	return nil
}

// Remove deletes the record; unknown sessions are ignored.
func (s *RedisSpool) Remove(ctx context.Context, provider, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, s.recordsKey(provider), sessionID)
		p.ZRem(ctx, s.orderKey(provider), sessionID)
		return nil
	})
	return err
}

// Load returns the spooled records of provider in save order.
func (s *RedisSpool) Load(ctx context.Context, provider string) ([]model.ChargeDetailRecord, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(provider), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := s.client.HMGet(ctx, s.recordsKey(provider), ids...).Result()
	if err != nil {
		return nil, err
	}
	res := make([]model.ChargeDetailRecord, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// order entry without a record
			continue
		}
		var c model.ChargeDetailRecord
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			return nil, fmt.Errorf("unmarshal record %s: %w", ids[i], err)
		}
		res = append(res, c)
	}
	return res, nil
}

func (s *RedisSpool) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
