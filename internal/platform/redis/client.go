// Package redis opens the optional redis connection behind the fallback store.
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"intake/internal/platform/config"
)

// Client wraps go-redis with health checks and pool metrics.
type Client struct {
	*redis.Client
}

// New connects using cfg. It returns nil, nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health satisfies health.CheckFunc.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

var (
	poolTotalDesc    = prometheus.NewDesc("intake_redis_pool_total_conns", "Number of total connections in the pool", nil, nil)
	poolIdleDesc     = prometheus.NewDesc("intake_redis_pool_idle_conns", "Number of idle connections in the pool", nil, nil)
	poolHitsDesc     = prometheus.NewDesc("intake_redis_pool_hits_total", "Times a free connection was found in the pool", nil, nil)
	poolMissesDesc   = prometheus.NewDesc("intake_redis_pool_misses_total", "Times a free connection was not found in the pool", nil, nil)
	poolTimeoutsDesc = prometheus.NewDesc("intake_redis_pool_timeouts_total", "Times a wait for a connection timed out", nil, nil)
)

// PoolCollector exposes go-redis pool statistics at scrape time.
type PoolCollector struct {
	client *Client
}

func NewPoolCollector(c *Client) *PoolCollector {
	return &PoolCollector{client: c}
}

func (p *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolTotalDesc
	ch <- poolIdleDesc
	ch <- poolHitsDesc
	ch <- poolMissesDesc
	ch <- poolTimeoutsDesc
}

func (p *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := p.client.PoolStats()
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(stats.TotalConns))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(stats.IdleConns))
	ch <- prometheus.MustNewConstMetric(poolHitsDesc, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(poolMissesDesc, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(poolTimeoutsDesc, prometheus.CounterValue, float64(stats.Timeouts))
}
