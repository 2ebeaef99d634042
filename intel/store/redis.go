package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisIntelPrefix = "adlens:intel:"
	redisAliasPrefix = "adlens:alias:"
)

// Redis is the shared backend for multi-node deployments. Entries carry a
// TTL past the service freshness window so stale bundles age out of the
// keyspace on their own.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the given redis:// URL. ttl bounds entry lifetime;
// it should exceed the service freshness window (a shorter TTL would evict
// entries the service still considers fresh).
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("store: invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}

	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (*NicheIntelligence, error) {
	data, err := r.client.Get(ctx, redisIntelPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Try alias resolution.
		target, aerr := r.client.Get(ctx, redisAliasPrefix+key).Result()
		if errors.Is(aerr, redis.Nil) {
			return nil, ErrNotFound
		}
		if aerr != nil {
			return nil, fmt.Errorf("store: redis alias get %s: %w", key, aerr)
		}
		data, err = r.client.Get(ctx, redisIntelPrefix+target).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get %s: %w", key, err)
	}

	var intel NicheIntelligence
	if err := json.Unmarshal(data, &intel); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return &intel, nil
}

func (r *Redis) Set(ctx context.Context, key string, intel *NicheIntelligence) error {
	data, err := json.Marshal(intel)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, redisIntelPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store: redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) SetAlias(ctx context.Context, alias, target string) error {
	// A primary entry under the alias key blocks the alias slot.
	n, err := r.client.Exists(ctx, redisIntelPrefix+alias).Result()
	if err != nil {
		return fmt.Errorf("store: redis alias check %s: %w", alias, err)
	}
	if n > 0 {
		return nil
	}
	// SETNX = first writer wins.
	if err := r.client.SetNX(ctx, redisAliasPrefix+alias, target, r.ttl).Err(); err != nil {
		return fmt.Errorf("store: redis set alias %s: %w", alias, err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, redisIntelPrefix+key, redisAliasPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("store: redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Stats scans the intel keyspace. O(niches) round trips — acceptable for
// an introspection endpoint hit by humans and dashboards.
func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	iter := r.client.Scan(ctx, 0, redisIntelPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and get
		}
		if err != nil {
			return Stats{}, fmt.Errorf("store: redis stats get: %w", err)
		}
		var meta struct {
			LastUpdated time.Time         `json:"last_updated"`
			Ads         []json.RawMessage `json:"ads"`
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		st.NichesTracked++
		st.TotalAdsCollected += len(meta.Ads)
		if st.OldestData.IsZero() || meta.LastUpdated.Before(st.OldestData) {
			st.OldestData = meta.LastUpdated
		}
		if meta.LastUpdated.After(st.NewestData) {
			st.NewestData = meta.LastUpdated
		}
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("store: redis scan: %w", err)
	}
	return st, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
