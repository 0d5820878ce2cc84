package optionsmath

import (
	"fmt"
	"math"
	"strings"

	"github.com/betbot/optcalc/internal/apperr"
)

// ParseOptionType 解析期权方向；空字符串视为看涨。
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "call", "c":
		return OptionTypeCall, nil
	case "put", "p":
		return OptionTypePut, nil
	default:
		return "", fmt.Errorf("unknown option type %q (want call or put)", s)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate 校验请求；返回 apperr.ValidationErrors，包含全部字段错误。
// 校验通过时返回展开后的涨跌幅列表。
func (r *CalculationRequest) Validate(limits Limits) ([]float64, error) {
	var errs apperr.ValidationErrors

	if !finite(r.SecurityPrice) || r.SecurityPrice <= 0 {
		errs.Add("securityPrice", r.SecurityPrice, "must be a positive number")
	} else if r.SecurityPrice > MaxAmount {
		errs.Add("securityPrice", r.SecurityPrice, "must not exceed %g", MaxAmount)
	}
	if !finite(r.InvestmentAmount) || r.InvestmentAmount <= 0 {
		errs.Add("investmentAmount", r.InvestmentAmount, "must be a positive number")
	} else if r.InvestmentAmount > MaxAmount {
		errs.Add("investmentAmount", r.InvestmentAmount, "must not exceed %g", MaxAmount)
	}

	switch {
	case len(r.Options) == 0:
		errs.Add("options", nil, "must contain at least one option contract")
	case limits.MaxOptions > 0 && len(r.Options) > limits.MaxOptions:
		errs.Add("options", len(r.Options), "at most %d option contracts allowed", limits.MaxOptions)
	}
	for i := range r.Options {
		validateContract(&errs, fmt.Sprintf("options[%d]", i), &r.Options[i])
	}

	increments, ok := r.increments(&errs, limits)
	if ok {
		for i, p := range increments {
			if !finite(p) {
				errs.Add(fmt.Sprintf("percentageIncrements[%d]", i), nil, "must be a finite number")
				continue
			}
			if p < -100 {
				errs.Add(fmt.Sprintf("percentageIncrements[%d]", i), p, "must be >= -100")
			} else if p > MaxIncrementPct {
				errs.Add(fmt.Sprintf("percentageIncrements[%d]", i), p, "must not exceed %g", MaxIncrementPct)
			}
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return increments, nil
}

func (r *CalculationRequest) increments(errs *apperr.ValidationErrors, limits Limits) ([]float64, bool) {
	if r.IncrementRange != nil {
		if len(r.PercentageIncrements) > 0 {
			errs.Add("incrementRange", nil, "cannot be combined with percentageIncrements")
			return nil, false
		}
		out, err := r.IncrementRange.Expand(limits.MaxIncrements)
		if err != nil {
			errs.Add("incrementRange", nil, "%v", err)
			return nil, false
		}
		return out, true
	}
	switch {
	case len(r.PercentageIncrements) == 0:
		errs.Add("percentageIncrements", nil, "must contain at least one increment")
		return nil, false
	case limits.MaxIncrements > 0 && len(r.PercentageIncrements) > limits.MaxIncrements:
		errs.Add("percentageIncrements", len(r.PercentageIncrements), "at most %d increments allowed", limits.MaxIncrements)
		return nil, false
	}
	return r.PercentageIncrements, true
}

func validateContract(errs *apperr.ValidationErrors, field string, c *OptionContract) {
	if !finite(c.Strike) || c.Strike <= 0 {
		errs.Add(field+".strike", c.Strike, "must be a positive number")
	} else if c.Strike > MaxAmount {
		errs.Add(field+".strike", c.Strike, "must not exceed %g", MaxAmount)
	}
	validateQuote(errs, field+".bid", c.Bid)
	validateQuote(errs, field+".ask", c.Ask)
	if finite(c.Bid) && finite(c.Ask) && c.Bid > c.Ask {
		errs.Add(field+".bid", c.Bid, "must not exceed ask (%v)", c.Ask)
	}
	if c.Price != nil {
		validateQuote(errs, field+".price", *c.Price)
	}
	t, err := ParseOptionType(string(c.Type))
	if err != nil {
		errs.Add(field+".type", c.Type, "must be call or put")
		return
	}
	c.Type = t
}

func validateQuote(errs *apperr.ValidationErrors, field string, v float64) {
	if !finite(v) || v < 0 {
		errs.Add(field, v, "must be a non-negative number")
	} else if v > MaxAmount {
		errs.Add(field, v, "must not exceed %g", MaxAmount)
	}
}
