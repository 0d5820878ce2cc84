// Package optionsmath 期权到期收益计算（纯函数，无状态）。
//
// 给定标的现价、投入资金、一组期权报价和一组标的涨跌幅（百分比），
// 对每个 (期权, 涨跌幅) 组合估算到期时的期权价值、盈亏和收益率。
// 金额运算使用 decimal，避免 0.07*100 这类浮点误差影响可买张数。
package optionsmath

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/optcalc/internal/apperr"
)

var (
	decZero       = decimal.Zero
	decTwo        = decimal.NewFromInt(2)
	decHundred    = decimal.NewFromInt(100)
	decMultiplier = decimal.NewFromInt(ContractMultiplier)
	decMaxCount   = decimal.NewFromInt(MaxContracts)
)

// Calculator 带规模上限的计算器；零值不可用，使用 NewCalculator。
type Calculator struct {
	limits Limits
}

// NewCalculator 创建计算器；limits 中 <=0 的字段表示不限制。
func NewCalculator(limits Limits) *Calculator {
	return &Calculator{limits: limits}
}

// Calculate 使用默认上限计算
func Calculate(req CalculationRequest) ([]CalculationResult, error) {
	return NewCalculator(DefaultLimits()).Calculate(req)
}

// Calculate 校验请求并返回 len(options)*len(increments) 个结果，
// 顺序为期权在外层、涨跌幅在内层（见 ResultOrder）。
// 请求不合法时返回 apperr.ValidationErrors，不返回任何部分结果。
func (c *Calculator) Calculate(req CalculationRequest) ([]CalculationResult, error) {
	// Validate 会规范化 Type，拷贝一份避免修改调用方的切片
	req.Options = append([]OptionContract(nil), req.Options...)
	increments, err := req.Validate(c.limits)
	if err != nil {
		return nil, err
	}

	security := decimal.NewFromFloat(req.SecurityPrice)
	investment := decimal.NewFromFloat(req.InvestmentAmount)

	projected := make([]decimal.Decimal, len(increments))
	for j, p := range increments {
		projected[j] = projectedPrice(security, decimal.NewFromFloat(p))
	}

	var errs apperr.ValidationErrors
	positions := make([]position, len(req.Options))
	for i, opt := range req.Options {
		positions[i] = openPosition(opt, security, investment)
		if positions[i].tooMany {
			errs.Add(fmt.Sprintf("options[%d]", i), positions[i].premium.InexactFloat64(),
				"premium too small for investmentAmount, more than %d contracts", int64(MaxContracts))
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	results := make([]CalculationResult, 0, len(req.Options)*len(increments))
	for i, pos := range positions {
		for j, p := range increments {
			r := pos.resultAt(i, j, p, projected[j])
			if err := checkFinite(&r); err != nil {
				return nil, err
			}
			results = append(results, r)
		}
	}
	return results, nil
}

// checkFinite 校验结果中没有 NaN/Inf；输入上限内不应触发，触发即为内部错误
func checkFinite(r *CalculationResult) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"premium", r.Premium},
		{"projectedPrice", r.ProjectedPrice},
		{"intrinsicValue", r.IntrinsicValue},
		{"extrinsicValue", r.ExtrinsicValue},
		{"breakevenPrice", r.BreakevenPrice},
		{"totalCost", r.TotalCost},
		{"leftoverCash", r.LeftoverCash},
		{"projectedValue", r.ProjectedValue},
		{"profitLoss", r.ProfitLoss},
	}
	if r.ReturnPct != nil {
		fields = append(fields, struct {
			name string
			v    float64
		}{"returnPct", *r.ReturnPct})
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return errors.Errorf("result (%d,%d) %s is not finite", r.OptionIndex, r.IncrementIndex, f.name)
		}
	}
	return nil
}

// Premium 参考权利金：Price 优先，否则 (Bid+Ask)/2
func Premium(opt OptionContract) decimal.Decimal {
	if opt.Price != nil {
		return decimal.NewFromFloat(*opt.Price)
	}
	return decimal.NewFromFloat(opt.Bid).Add(decimal.NewFromFloat(opt.Ask)).Div(decTwo)
}

// ProjectedPrice securityPrice * (1 + pct/100)
func ProjectedPrice(securityPrice, pct float64) float64 {
	return projectedPrice(decimal.NewFromFloat(securityPrice), decimal.NewFromFloat(pct)).InexactFloat64()
}

func projectedPrice(security, pct decimal.Decimal) decimal.Decimal {
	if pct.IsZero() {
		return security
	}
	return security.Mul(decHundred.Add(pct)).Div(decHundred)
}

// IntrinsicValue 到期内在价值（每股）
func IntrinsicValue(t OptionType, strike, underlying decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	if t == OptionTypePut {
		v = strike.Sub(underlying)
	} else {
		v = underlying.Sub(strike)
	}
	return decimal.Max(decZero, v)
}

// AffordableContracts floor(investment / (premium*100))；premium<=0 时返回 0，
// 超过 MaxContracts 时截为 MaxContracts
func AffordableContracts(investment, premium decimal.Decimal) int64 {
	q := affordableQuotient(investment, premium)
	if q.GreaterThan(decMaxCount) {
		return MaxContracts
	}
	return q.IntPart()
}

func affordableQuotient(investment, premium decimal.Decimal) decimal.Decimal {
	if !premium.IsPositive() {
		return decZero
	}
	q, _ := investment.QuoRem(premium.Mul(decMultiplier), 0)
	return q
}

// position 单个期权在给定资金下的建仓情况，与涨跌幅无关
type position struct {
	opt        OptionContract
	premium    decimal.Decimal
	contracts  int64
	units      decimal.Decimal // 用于金额计算的张数，归一化时为 1
	normalized bool
	affordable bool
	tooMany    bool
	totalCost  decimal.Decimal
	leftover   decimal.Decimal
	extrinsic  decimal.Decimal
	breakeven  decimal.Decimal
}

func openPosition(opt OptionContract, security, investment decimal.Decimal) position {
	premium := Premium(opt)
	strike := decimal.NewFromFloat(opt.Strike)

	q := affordableQuotient(investment, premium)
	p := position{
		opt:       opt,
		premium:   premium,
		contracts: AffordableContracts(investment, premium),
		tooMany:   q.GreaterThan(decMaxCount),
	}

	switch {
	case premium.IsZero():
		// 零权利金：可买张数无意义，按一张归一化，收益率单独标记；
		// 与资金不足一致，contracts=0 即 affordable=false
		p.units = decimal.NewFromInt(1)
		p.normalized = true
	case p.contracts == 0:
		p.units = decimal.NewFromInt(1)
		p.normalized = true
	default:
		p.units = decimal.NewFromInt(p.contracts)
		p.affordable = true
	}

	p.totalCost = premium.Mul(decimal.NewFromInt(p.contracts)).Mul(decMultiplier)
	p.leftover = investment.Sub(p.totalCost)

	current := IntrinsicValue(opt.Type, strike, security)
	p.extrinsic = decimal.Max(decZero, premium.Sub(current))

	if opt.Type == OptionTypePut {
		p.breakeven = decimal.Max(decZero, strike.Sub(premium))
	} else {
		p.breakeven = strike.Add(premium)
	}
	return p
}

func (p position) resultAt(optionIndex, incrementIndex int, pct float64, projected decimal.Decimal) CalculationResult {
	strike := decimal.NewFromFloat(p.opt.Strike)
	intrinsic := IntrinsicValue(p.opt.Type, strike, projected)

	shares := p.units.Mul(decMultiplier)
	value := intrinsic.Mul(shares)
	cost := p.premium.Mul(shares)
	pl := value.Sub(cost)

	r := CalculationResult{
		OptionIndex:         optionIndex,
		IncrementIndex:      incrementIndex,
		Symbol:              p.opt.Symbol,
		Type:                p.opt.Type,
		Strike:              p.opt.Strike,
		PercentageIncrement: pct,
		Premium:             p.premium.InexactFloat64(),
		ProjectedPrice:      projected.InexactFloat64(),
		IntrinsicValue:      intrinsic.InexactFloat64(),
		ExtrinsicValue:      p.extrinsic.InexactFloat64(),
		BreakevenPrice:      p.breakeven.InexactFloat64(),
		Contracts:           p.contracts,
		Affordable:          p.affordable,
		Normalized:          p.normalized,
		TotalCost:           p.totalCost.InexactFloat64(),
		LeftoverCash:        p.leftover.InexactFloat64(),
		ProjectedValue:      value.InexactFloat64(),
		ProfitLoss:          pl.InexactFloat64(),
	}

	if cost.IsZero() {
		r.ReturnStatus = ReturnStatusUndefinedZeroPremium
		return r
	}
	ret := pl.Div(cost).Mul(decHundred).InexactFloat64()
	r.ReturnPct = &ret
	r.ReturnStatus = ReturnStatusOK
	return r
}
