// Package portfolio 持仓组合的市值 / 浮动盈亏分析（纯计算，不访问行情）。
package portfolio

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/betbot/optcalc/internal/apperr"
)

// MaxHoldings 单次分析最多持仓数
const MaxHoldings = 100

// Holding 单个持仓；CostBasis 为每股平均成本
type Holding struct {
	Symbol    string  `json:"symbol"`
	Shares    float64 `json:"shares"`
	CostBasis float64 `json:"costBasis"`
}

// HoldingResult 单个持仓的分析结果
type HoldingResult struct {
	Symbol          string   `json:"symbol"`
	Shares          float64  `json:"shares"`
	CostBasis       float64  `json:"costBasis"`
	Price           float64  `json:"price"`
	MarketValue     float64  `json:"marketValue"`
	Cost            float64  `json:"cost"`
	UnrealizedPL    float64  `json:"unrealizedPL"`
	UnrealizedPLPct *float64 `json:"unrealizedPLPct"` // 成本为 0 时为 null
	Weight          float64  `json:"weight"`          // 占组合市值百分比
}

// Summary 组合汇总
type Summary struct {
	Holdings        []HoldingResult `json:"holdings"`
	MarketValue     float64         `json:"marketValue"`
	Cost            float64         `json:"cost"`
	UnrealizedPL    float64         `json:"unrealizedPL"`
	UnrealizedPLPct *float64        `json:"unrealizedPLPct"`
}

// Validate 校验持仓列表，返回全部字段错误
func Validate(holdings []Holding) error {
	var errs apperr.ValidationErrors
	if len(holdings) == 0 {
		errs.Add("holdings", nil, "must contain at least one holding")
	}
	if len(holdings) > MaxHoldings {
		errs.Add("holdings", len(holdings), "must contain at most %d holdings", MaxHoldings)
	}
	for i, h := range holdings {
		if h.Symbol == "" {
			errs.Add(fieldName(i, "symbol"), nil, "is required")
		}
		if math.IsNaN(h.Shares) || math.IsInf(h.Shares, 0) || h.Shares <= 0 {
			errs.Add(fieldName(i, "shares"), h.Shares, "must be a positive number")
		}
		if math.IsNaN(h.CostBasis) || math.IsInf(h.CostBasis, 0) || h.CostBasis < 0 {
			errs.Add(fieldName(i, "costBasis"), h.CostBasis, "must be a non-negative number")
		}
	}
	return errs.Err()
}

func fieldName(i int, name string) string {
	return fmt.Sprintf("holdings[%d].%s", i, name)
}

// Analyze 按 prices（代码 -> 最新价）计算每个持仓和组合汇总；调用方保证 prices 覆盖全部代码
func Analyze(holdings []Holding, prices map[string]float64) Summary {
	type row struct {
		value, cost, pl decimal.Decimal
	}
	rows := make([]row, len(holdings))
	totalValue := decimal.Zero
	totalCost := decimal.Zero

	for i, h := range holdings {
		shares := decimal.NewFromFloat(h.Shares)
		value := shares.Mul(decimal.NewFromFloat(prices[h.Symbol]))
		cost := shares.Mul(decimal.NewFromFloat(h.CostBasis))
		rows[i] = row{value: value, cost: cost, pl: value.Sub(cost)}
		totalValue = totalValue.Add(value)
		totalCost = totalCost.Add(cost)
	}

	out := Summary{Holdings: make([]HoldingResult, len(holdings))}
	for i, h := range holdings {
		r := rows[i]
		res := HoldingResult{
			Symbol:          h.Symbol,
			Shares:          h.Shares,
			CostBasis:       h.CostBasis,
			Price:           prices[h.Symbol],
			MarketValue:     r.value.InexactFloat64(),
			Cost:            r.cost.InexactFloat64(),
			UnrealizedPL:    r.pl.InexactFloat64(),
			UnrealizedPLPct: percentOf(r.pl, r.cost),
		}
		if !totalValue.IsZero() {
			res.Weight = r.value.Div(totalValue).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
		}
		out.Holdings[i] = res
	}

	totalPL := totalValue.Sub(totalCost)
	out.MarketValue = totalValue.InexactFloat64()
	out.Cost = totalCost.InexactFloat64()
	out.UnrealizedPL = totalPL.InexactFloat64()
	out.UnrealizedPLPct = percentOf(totalPL, totalCost)
	return out
}

func percentOf(part, whole decimal.Decimal) *float64 {
	if whole.IsZero() {
		return nil
	}
	v := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
	return &v
}
