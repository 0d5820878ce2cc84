package server

import (
	"net/http"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/internal/metrics"
	"github.com/betbot/optcalc/pkg/marketdata"
	"github.com/betbot/optcalc/pkg/optionsmath"
)

// resultOrderHeader 告知客户端结果数组的排列方式（期权在外层，涨跌幅在内层）
const resultOrderHeader = "X-Result-Order"

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req optionsmath.CalculationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	metrics.CalculationRequests.Add(1)
	results, err := s.calc.Calculate(req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	metrics.CalculationResults.Add(int64(len(results)))
	w.Header().Set(resultOrderHeader, optionsmath.ResultOrder)
	writeJSON(w, r, http.StatusOK, results)
}

type symbolCalculationRequest struct {
	InvestmentAmount     float64                     `json:"investmentAmount"`
	PercentageIncrements []float64                   `json:"percentageIncrements,omitempty"`
	IncrementRange       *optionsmath.IncrementRange `json:"incrementRange,omitempty"`
	Expiration           string                      `json:"expiration,omitempty"` // 为空时取最近到期日
	Type                 string                      `json:"type,omitempty"`
	MinStrike            float64                     `json:"minStrike,omitempty"`
	MaxStrike            float64                     `json:"maxStrike,omitempty"`
}

type symbolCalculationResponse struct {
	Symbol        string                          `json:"symbol"`
	SecurityPrice float64                         `json:"securityPrice"`
	Expiration    string                          `json:"expiration"`
	Order         string                          `json:"order"`
	Options       []optionsmath.OptionContract    `json:"options"`
	Results       []optionsmath.CalculationResult `json:"results"`
}

// filter 校验过滤条件（不涉及行情），返回链过滤器
func (req *symbolCalculationRequest) filter() (marketdata.ChainFilter, error) {
	var errs apperr.ValidationErrors
	var f marketdata.ChainFilter
	if req.InvestmentAmount <= 0 {
		errs.Add("investmentAmount", req.InvestmentAmount, "must be a positive number")
	}
	if req.Type != "" {
		t, err := optionsmath.ParseOptionType(req.Type)
		if err != nil {
			errs.Add("type", req.Type, "must be call or put")
		}
		f.Type = t
	}
	if req.MinStrike < 0 {
		errs.Add("minStrike", req.MinStrike, "must not be negative")
	}
	if req.MaxStrike < 0 {
		errs.Add("maxStrike", req.MaxStrike, "must not be negative")
	}
	if req.MaxStrike > 0 && req.MinStrike > req.MaxStrike {
		errs.Add("minStrike", req.MinStrike, "must not exceed maxStrike (%v)", req.MaxStrike)
	}
	if req.Expiration != "" {
		if err := marketdata.ValidateExpiration(req.Expiration); err != nil {
			errs = append(errs, apperr.Fields(err)...)
		}
	}
	f.MinStrike = req.MinStrike
	f.MaxStrike = req.MaxStrike
	return f, errs.Err()
}

// handleCalculateSymbol 拉取标的报价和期权链后运行计算器
func (s *Server) handleCalculateSymbol(w http.ResponseWriter, r *http.Request) {
	symbol, err := marketdata.NormalizeSymbol(pathParam(r, "symbol"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req symbolCalculationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	filter, err := req.filter()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	provider, err := s.provider()
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	quote, err := marketdata.GetQuote(ctx, provider, symbol)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	expiration := req.Expiration
	if expiration == "" {
		if expiration, err = marketdata.NearestExpiration(ctx, provider, symbol, s.cfg.Now()); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	chain, err := provider.Chain(ctx, symbol, expiration)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	contracts := chain.Contracts(filter)
	if len(contracts) == 0 {
		writeAppError(w, r, apperr.Invalid("options", nil, "no option contracts match the filter"))
		return
	}
	if s.cfg.Limits.MaxOptions > 0 && len(contracts) > s.cfg.Limits.MaxOptions {
		writeAppError(w, r, apperr.Invalid("options", len(contracts),
			"chain has more contracts than allowed, narrow it with type / minStrike / maxStrike"))
		return
	}

	calcReq := optionsmath.CalculationRequest{
		SecurityPrice:        underlyingPrice(quote),
		InvestmentAmount:     req.InvestmentAmount,
		Options:              contracts,
		PercentageIncrements: req.PercentageIncrements,
		IncrementRange:       req.IncrementRange,
	}
	metrics.CalculationRequests.Add(1)
	results, err := s.calc.Calculate(calcReq)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	metrics.CalculationResults.Add(int64(len(results)))

	w.Header().Set(resultOrderHeader, optionsmath.ResultOrder)
	writeJSON(w, r, http.StatusOK, symbolCalculationResponse{
		Symbol:        symbol,
		SecurityPrice: calcReq.SecurityPrice,
		Expiration:    expiration,
		Order:         optionsmath.ResultOrder,
		Options:       contracts,
		Results:       results,
	})
}

// underlyingPrice 优先最新成交价，盘前等无成交时用买卖中间价
func underlyingPrice(q *marketdata.Quote) float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.PrevClose
}
