// Package marketdata 第三方行情数据源（股票报价 / 期权链）的客户端与装饰器。
package marketdata

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/pkg/optionsmath"
)

// Quote 股票 / ETF 报价
type Quote struct {
	Symbol      string    `json:"symbol"`
	Description string    `json:"description"`
	Exchange    string    `json:"exchange"`
	Last        float64   `json:"last"`
	Change      float64   `json:"change"`
	ChangePct   float64   `json:"changePct"`
	Bid         float64   `json:"bid"`
	Ask         float64   `json:"ask"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	PrevClose   float64   `json:"prevClose"`
	Volume      int64     `json:"volume"`
	Week52High  float64   `json:"week52High"`
	Week52Low   float64   `json:"week52Low"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OptionQuote 期权链中的单个合约
type OptionQuote struct {
	Symbol       string                 `json:"symbol"`
	Underlying   string                 `json:"underlying"`
	Type         optionsmath.OptionType `json:"type"`
	Strike       float64                `json:"strike"`
	Bid          float64                `json:"bid"`
	Ask          float64                `json:"ask"`
	Last         float64                `json:"last"`
	Volume       int64                  `json:"volume"`
	OpenInterest int64                  `json:"openInterest"`
	Expiration   string                 `json:"expiration"`
	ContractSize int                    `json:"contractSize"`
}

// Chain 某到期日的期权链（按行权价升序，同一行权价 call 在前）
type Chain struct {
	Underlying string        `json:"underlying"`
	Expiration string        `json:"expiration"`
	Options    []OptionQuote `json:"options"`
}

// ChainFilter 从期权链挑选合约；零值表示不过滤
type ChainFilter struct {
	Type      optionsmath.OptionType
	MinStrike float64
	MaxStrike float64
}

// Match 判断合约是否满足过滤条件
func (f ChainFilter) Match(o OptionQuote) bool {
	if f.Type != "" && o.Type != f.Type {
		return false
	}
	if f.MinStrike > 0 && o.Strike < f.MinStrike {
		return false
	}
	if f.MaxStrike > 0 && o.Strike > f.MaxStrike {
		return false
	}
	return true
}

// Contracts 转换为计算器输入；bid > ask 的异常报价会被跳过。
// 计算器按每张 100 股计价，合约单位不是 100 的迷你或调整合约也会被跳过
// （ContractSize 为 0 表示上游未提供，按标准合约处理）。
func (c *Chain) Contracts(filter ChainFilter) []optionsmath.OptionContract {
	out := make([]optionsmath.OptionContract, 0, len(c.Options))
	for _, o := range c.Options {
		if !filter.Match(o) || o.Bid > o.Ask || o.Strike <= 0 {
			continue
		}
		if o.ContractSize != 0 && o.ContractSize != optionsmath.ContractMultiplier {
			continue
		}
		out = append(out, optionsmath.OptionContract{
			Strike:     o.Strike,
			Bid:        o.Bid,
			Ask:        o.Ask,
			Type:       o.Type,
			Symbol:     o.Symbol,
			Expiration: o.Expiration,
		})
	}
	return out
}

func (c *Chain) sort() {
	sort.SliceStable(c.Options, func(i, j int) bool {
		a, b := c.Options[i], c.Options[j]
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.Type == optionsmath.OptionTypeCall && b.Type == optionsmath.OptionTypePut
	})
}

// Provider 行情数据源
type Provider interface {
	// Quotes 批量查询报价；返回顺序与 symbols 一致，不存在的代码返回 ErrSymbolNotFound
	Quotes(ctx context.Context, symbols []string) ([]Quote, error)
	// Expirations 期权到期日（YYYY-MM-DD，升序）
	Expirations(ctx context.Context, symbol string) ([]string, error)
	// Chain 指定到期日的期权链
	Chain(ctx context.Context, symbol, expiration string) (*Chain, error)
}

// GetQuote 查询单个报价
func GetQuote(ctx context.Context, p Provider, symbol string) (*Quote, error) {
	quotes, err := p.Quotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	return &quotes[0], nil
}

// NearestExpiration 返回不早于 now 当天的最近到期日
func NearestExpiration(ctx context.Context, p Provider, symbol string, now time.Time) (string, error) {
	dates, err := p.Expirations(ctx, symbol)
	if err != nil {
		return "", err
	}
	today := now.Format(time.DateOnly)
	for _, d := range dates {
		if d >= today {
			return d, nil
		}
	}
	return "", apperr.Invalid("expiration", symbol, "no upcoming option expirations")
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.^\-]{1,12}$`)

// NormalizeSymbol 去空格并转大写，校验代码格式
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolPattern.MatchString(sym) {
		return "", apperr.Invalid("symbol", s, "must be 1-12 characters of A-Z, 0-9, '.', '-', '^'")
	}
	return sym, nil
}

// ValidateExpiration 校验 YYYY-MM-DD 格式
func ValidateExpiration(s string) error {
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return apperr.Invalid("expiration", s, "must be a date in YYYY-MM-DD format")
	}
	return nil
}
