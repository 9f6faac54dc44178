package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/AdvantusAI/m8-collab/internal/config"
	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

const (
	summaryKeyPrefix = "collab:summary"
	scanBatchSize    = 100
)

// SummaryKey identifies one cached rollup table.
type SummaryKey struct {
	Filter  domain.Filter
	Window  period.Window
	Unit    domain.Unit
	Metrics []domain.Metric
}

// SummaryCache stores computed collaboration summaries. Every confirmed edit invalidates it.
type SummaryCache interface {
	GetSummary(ctx context.Context, key SummaryKey) (*domain.CollaborationSummary, bool, error)
	SetSummary(ctx context.Context, key SummaryKey, summary *domain.CollaborationSummary) error
	InvalidateAll(ctx context.Context) error
}

type redisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSummaryCache struct{}

func NewSummaryCache(cfg config.CacheConfig) (SummaryCache, error) {
	if !cfg.Enabled {
		return &noopSummaryCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisSummaryCache{
		client: client,
		ttl:    ttl,
	}, nil
}

// NewRedisSummaryCache wraps an existing client.
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration) SummaryCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisSummaryCache{client: client, ttl: ttl}
}

func NewNoopSummaryCache() SummaryCache {
	return &noopSummaryCache{}
}

func (c *redisSummaryCache) GetSummary(ctx context.Context, key SummaryKey) (*domain.CollaborationSummary, bool, error) {
	payload, err := c.client.Get(ctx, buildSummaryKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var summary domain.CollaborationSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, false, fmt.Errorf("decode collaboration summary cache: %w", err)
	}

	return &summary, true, nil
}

func (c *redisSummaryCache) SetSummary(ctx context.Context, key SummaryKey, summary *domain.CollaborationSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode collaboration summary cache: %w", err)
	}

	if err := c.client.Set(ctx, buildSummaryKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSummaryCache) InvalidateAll(ctx context.Context) error {
	removed, err := deleteKeysWithPrefix(ctx, c.client, summaryKeyPrefix, scanBatchSize)
	if err != nil {
		return err
	}
	log.Debug().Int64("keys", removed).Msg("cache: summaries invalidated")
	return nil
}

func (n *noopSummaryCache) GetSummary(ctx context.Context, key SummaryKey) (*domain.CollaborationSummary, bool, error) {
	return nil, false, nil
}

func (n *noopSummaryCache) SetSummary(ctx context.Context, key SummaryKey, summary *domain.CollaborationSummary) error {
	return nil
}

func (n *noopSummaryCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildSummaryKey(key SummaryKey) string {
	return fmt.Sprintf("%s:%s", summaryKeyPrefix, summaryHash(key))
}

// summaryHash is stable under reordering of the ID sets and metric list.
func summaryHash(key SummaryKey) string {
	parts := []string{
		"unit=" + string(key.Unit),
		"window=" + key.Window.String(),
	}

	if len(key.Filter.CustomerIDs) > 0 {
		parts = append(parts, "customer_ids="+joinStrings(key.Filter.CustomerIDs))
	}
	if len(key.Filter.ProductIDs) > 0 {
		parts = append(parts, "product_ids="+joinStrings(key.Filter.ProductIDs))
	}
	if len(key.Filter.LocationIDs) > 0 {
		parts = append(parts, "location_ids="+joinStrings(key.Filter.LocationIDs))
	}
	if key.Filter.StartDate != nil {
		parts = append(parts, "start_date="+key.Filter.StartDate.Format("2006-01-02"))
	}
	if key.Filter.EndDate != nil {
		parts = append(parts, "end_date="+key.Filter.EndDate.Format("2006-01-02"))
	}
	if len(key.Metrics) > 0 {
		metrics := make([]string, len(key.Metrics))
		for i, m := range key.Metrics {
			metrics[i] = string(m)
		}
		parts = append(parts, "metrics="+joinStrings(metrics))
	}

	sort.Strings(parts)
	raw := strings.Join(parts, "|")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func joinStrings(values []string) string {
	c := append([]string(nil), values...)
	for i := range c {
		c[i] = strings.TrimSpace(c[i])
	}
	sort.Strings(c)
	return strings.Join(c, ",")
}
