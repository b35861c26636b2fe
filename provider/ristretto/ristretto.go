// Package ristretto stores entry records in an in-process ristretto cache.
// It is the default record store of filecache.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/imagecache/internal/util"
	pr "github.com/unkn0wn-root/imagecache/provider"
)

var ErrInvalidConfig = errors.New("ristretto: invalid config")

type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

// Config sizes the cache. Zero fields take defaults suited to a few hundred
// thousand small records.
type Config struct {
	NumCounters int64 // default 1e6
	MaxCost     int64 // bytes of record payload, default 64 MiB
	BufferItems int64 // default 64
}

func New(cfg Config) (*Provider, error) {
	cfg.NumCounters = util.Coalesce(cfg.NumCounters, 1_000_000)
	cfg.MaxCost = util.Coalesce(cfg.MaxCost, 64<<20)
	cfg.BufferItems = util.Coalesce(cfg.BufferItems, 64)
	if cfg.NumCounters < 0 || cfg.MaxCost < 0 || cfg.BufferItems < 0 {
		return nil, ErrInvalidConfig
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set admits value asynchronously. A rejected admission reports ok=false;
// the record is rebuilt from disk on the next Load.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	return p.c.SetWithTTL(key, value, cost, ttl), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}
