package marketdata

import (
	"context"

	"github.com/pkg/errors"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/pkg/ratelimit"
)

// LimitedProvider 上游调用前先从令牌桶取令牌，保护第三方 API 配额
type LimitedProvider struct {
	next    Provider
	limiter ratelimit.RateLimiter
}

func NewLimitedProvider(next Provider, limiter ratelimit.RateLimiter) *LimitedProvider {
	return &LimitedProvider{next: next, limiter: limiter}
}

func (p *LimitedProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(apperr.ErrRateLimited, "waiting for market data quota: %v", err)
	}
	return nil
}

func (p *LimitedProvider) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.next.Quotes(ctx, symbols)
}

func (p *LimitedProvider) Expirations(ctx context.Context, symbol string) ([]string, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.next.Expirations(ctx, symbol)
}

func (p *LimitedProvider) Chain(ctx context.Context, symbol, expiration string) (*Chain, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.next.Chain(ctx, symbol, expiration)
}
