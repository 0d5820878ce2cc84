package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/betbot/optcalc/internal/metrics"
	"github.com/betbot/optcalc/pkg/cache"
	"github.com/betbot/optcalc/pkg/logger"
)

// CachedProvider 为 Provider 加一层 TTL 缓存；缓存后端故障时直接回源
type CachedProvider struct {
	next     Provider
	store    cache.Store
	quoteTTL time.Duration
	chainTTL time.Duration
}

// NewCachedProvider 创建带缓存的 Provider；到期日列表与期权链共用 chainTTL
func NewCachedProvider(next Provider, store cache.Store, quoteTTL, chainTTL time.Duration) *CachedProvider {
	return &CachedProvider{next: next, store: store, quoteTTL: quoteTTL, chainTTL: chainTTL}
}

func (p *CachedProvider) load(ctx context.Context, key string, out any) bool {
	b, ok, err := p.store.Get(ctx, key)
	if err != nil {
		logger.Warnf("[marketdata] 读取缓存失败 key=%s: %v", key, err)
		return false
	}
	if !ok {
		metrics.CacheMisses.Add(1)
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		logger.Warnf("[marketdata] 缓存数据损坏 key=%s: %v", key, err)
		return false
	}
	metrics.CacheHits.Add(1)
	return true
}

func (p *CachedProvider) save(ctx context.Context, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := p.store.Set(ctx, key, b, ttl); err != nil {
		logger.Warnf("[marketdata] 写入缓存失败 key=%s: %v", key, err)
	}
}

// Quotes 命中缓存的代码不再请求上游，缺失的合并为一次请求
func (p *CachedProvider) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	out := make([]Quote, len(symbols))
	var missing []string
	var missingIdx []int
	for i, sym := range symbols {
		if !p.load(ctx, "quote:"+sym, &out[i]) {
			missing = append(missing, sym)
			missingIdx = append(missingIdx, i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := p.next.Quotes(ctx, missing)
	if err != nil {
		return nil, err
	}
	for k, q := range fetched {
		out[missingIdx[k]] = q
		p.save(ctx, "quote:"+missing[k], q, p.quoteTTL)
	}
	return out, nil
}

func (p *CachedProvider) Expirations(ctx context.Context, symbol string) ([]string, error) {
	key := "expirations:" + symbol
	var dates []string
	if p.load(ctx, key, &dates) {
		return dates, nil
	}
	dates, err := p.next.Expirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	p.save(ctx, key, dates, p.chainTTL)
	return dates, nil
}

func (p *CachedProvider) Chain(ctx context.Context, symbol, expiration string) (*Chain, error) {
	key := "chain:" + symbol + ":" + expiration
	var chain Chain
	if p.load(ctx, key, &chain) {
		return &chain, nil
	}
	fetched, err := p.next.Chain(ctx, symbol, expiration)
	if err != nil {
		return nil, err
	}
	p.save(ctx, key, fetched, p.chainTTL)
	return fetched, nil
}
