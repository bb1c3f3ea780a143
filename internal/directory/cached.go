package directory

import (
	"context"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"github.com/dgraph-io/ristretto/v2"
)

// Cached: TTL-кэш поверх любого Source. Ошибки не кэшируются.
type Cached struct {
	src   Source
	cache *ristretto.Cache[string, domain.SenderProfile]
	ttl   time.Duration
}

func NewCached(src Source, size int64, ttl time.Duration) (*Cached, error) {
	if size <= 0 {
		size = 10_000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, domain.SenderProfile]{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true, // стоимость = число профилей
	})
	if err != nil {
		return nil, err
	}
	return &Cached{src: src, cache: cache, ttl: ttl}, nil
}

func (c *Cached) Profile(ctx context.Context, s domain.Sender) (domain.SenderProfile, error) {
	key := s.String()
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}

	p, err := c.src.Profile(ctx, s)
	if err != nil {
		return domain.SenderProfile{}, err
	}
	c.cache.SetWithTTL(key, p, 1, c.ttl)
	return p, nil
}

// Wait дожидается применения буферизованных записей в кэш.
func (c *Cached) Wait() { c.cache.Wait() }

func (c *Cached) Close() { c.cache.Close() }
