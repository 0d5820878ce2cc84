package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/pkg/optionsmath"
	sdkhttp "github.com/betbot/optcalc/pkg/sdk/http"
)

// TradierConfig Tradier 行情 API 配置
type TradierConfig struct {
	BaseURL    string // 例如 https://api.tradier.com 或 https://sandbox.tradier.com
	Token      string
	Timeout    time.Duration
	RetryCount int
}

// TradierClient 基于 Tradier markets API 的 Provider
type TradierClient struct {
	http *sdkhttp.Client
}

// NewTradierClient 创建客户端
func NewTradierClient(cfg TradierConfig) *TradierClient {
	headers := map[string]string{}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	return &TradierClient{
		http: sdkhttp.NewClient(cfg.BaseURL, sdkhttp.Options{
			Timeout:    cfg.Timeout,
			RetryCount: cfg.RetryCount,
			Headers:    headers,
		}),
	}
}

// oneOrMany Tradier 在只有一个元素时返回对象而不是数组
type oneOrMany[T any] []T

func (m *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = nil
		return nil
	}
	if b[0] == '[' {
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*m = many
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*m = []T{one}
	return nil
}

type tradierQuote struct {
	Symbol           string  `json:"symbol"`
	Description      string  `json:"description"`
	Exch             string  `json:"exch"`
	Last             float64 `json:"last"`
	Change           float64 `json:"change"`
	ChangePercentage float64 `json:"change_percentage"`
	Bid              float64 `json:"bid"`
	Ask              float64 `json:"ask"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	PrevClose        float64 `json:"prevclose"`
	Volume           int64   `json:"volume"`
	Week52High       float64 `json:"week_52_high"`
	Week52Low        float64 `json:"week_52_low"`
	TradeDate        int64   `json:"trade_date"` // 毫秒时间戳
}

type quotesResponse struct {
	Quotes *struct {
		Quote oneOrMany[tradierQuote] `json:"quote"`
	} `json:"quotes"`
}

type expirationsResponse struct {
	Expirations *struct {
		Date oneOrMany[string] `json:"date"`
	} `json:"expirations"`
}

type tradierOption struct {
	Symbol         string  `json:"symbol"`
	Underlying     string  `json:"underlying"`
	Strike         float64 `json:"strike"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	ContractSize   int     `json:"contract_size"`
}

type chainResponse struct {
	Options *struct {
		Option oneOrMany[tradierOption] `json:"option"`
	} `json:"options"`
}

func (c *TradierClient) get(ctx context.Context, endpoint string, params map[string]any, out any) error {
	resp, err := c.http.DoRequest(ctx, http.MethodGet, endpoint, &sdkhttp.RequestOptions{Params: params}, out)
	if perr := sdkhttp.ParseHTTPError(resp, err); perr != nil {
		var httpErr *sdkhttp.HTTPError
		if errors.As(perr, &httpErr) && httpErr.Status == http.StatusTooManyRequests {
			return errors.Wrapf(apperr.ErrRateLimited, "GET %s: upstream returned 429", endpoint)
		}
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "GET %s", endpoint)
		}
		return errors.Wrapf(apperr.ErrUpstream, "GET %s: %v", endpoint, perr)
	}
	return nil
}

// Quotes 批量查询报价
func (c *TradierClient) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	var resp quotesResponse
	err := c.get(ctx, "/v1/markets/quotes", map[string]any{
		"symbols": strings.Join(symbols, ","),
		"greeks":  "false",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Quotes == nil {
		return nil, errors.Wrapf(apperr.ErrSymbolNotFound, "%s", strings.Join(symbols, ","))
	}

	bySymbol := make(map[string]tradierQuote, len(resp.Quotes.Quote))
	for _, q := range resp.Quotes.Quote {
		bySymbol[strings.ToUpper(q.Symbol)] = q
	}

	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		q, ok := bySymbol[strings.ToUpper(sym)]
		if !ok {
			return nil, errors.Wrapf(apperr.ErrSymbolNotFound, "%s", sym)
		}
		out = append(out, q.toQuote())
	}
	return out, nil
}

func (q tradierQuote) toQuote() Quote {
	out := Quote{
		Symbol:      q.Symbol,
		Description: q.Description,
		Exchange:    q.Exch,
		Last:        q.Last,
		Change:      q.Change,
		ChangePct:   q.ChangePercentage,
		Bid:         q.Bid,
		Ask:         q.Ask,
		Open:        q.Open,
		High:        q.High,
		Low:         q.Low,
		PrevClose:   q.PrevClose,
		Volume:      q.Volume,
		Week52High:  q.Week52High,
		Week52Low:   q.Week52Low,
	}
	if q.TradeDate > 0 {
		out.UpdatedAt = time.UnixMilli(q.TradeDate).UTC()
	}
	return out
}

// Expirations 期权到期日
func (c *TradierClient) Expirations(ctx context.Context, symbol string) ([]string, error) {
	var resp expirationsResponse
	if err := c.get(ctx, "/v1/markets/options/expirations", map[string]any{"symbol": symbol}, &resp); err != nil {
		return nil, err
	}
	if resp.Expirations == nil || len(resp.Expirations.Date) == 0 {
		return nil, errors.Wrapf(apperr.ErrSymbolNotFound, "no option expirations for %s", symbol)
	}
	dates := append([]string(nil), resp.Expirations.Date...)
	sort.Strings(dates)
	return dates, nil
}

// Chain 期权链
func (c *TradierClient) Chain(ctx context.Context, symbol, expiration string) (*Chain, error) {
	var resp chainResponse
	err := c.get(ctx, "/v1/markets/options/chains", map[string]any{
		"symbol":     symbol,
		"expiration": expiration,
		"greeks":     "false",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Options == nil || len(resp.Options.Option) == 0 {
		return nil, errors.Wrapf(apperr.ErrSymbolNotFound, "no option chain for %s %s", symbol, expiration)
	}

	chain := &Chain{Underlying: symbol, Expiration: expiration}
	for _, o := range resp.Options.Option {
		t, err := optionsmath.ParseOptionType(o.OptionType)
		if err != nil {
			continue
		}
		chain.Options = append(chain.Options, OptionQuote{
			Symbol:       o.Symbol,
			Underlying:   o.Underlying,
			Type:         t,
			Strike:       o.Strike,
			Bid:          o.Bid,
			Ask:          o.Ask,
			Last:         o.Last,
			Volume:       o.Volume,
			OpenInterest: o.OpenInterest,
			Expiration:   o.ExpirationDate,
			ContractSize: o.ContractSize,
		})
	}
	chain.sort()
	return chain, nil
}
