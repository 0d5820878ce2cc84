package optionsmath

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Expand 生成 From, From+Step, ..., To（含端点，若能整除）。
// 使用十进制累加，避免 -10, -9.5, ... 这类序列出现浮点漂移。
func (r IncrementRange) Expand(maxCount int) ([]float64, error) {
	if !finite(r.From) || !finite(r.To) || !finite(r.Step) {
		return nil, fmt.Errorf("from/to/step must be finite numbers")
	}
	if r.Step <= 0 {
		return nil, fmt.Errorf("step must be > 0")
	}
	if r.From > r.To {
		return nil, fmt.Errorf("from (%v) must be <= to (%v)", r.From, r.To)
	}

	from := decimal.NewFromFloat(r.From)
	to := decimal.NewFromFloat(r.To)
	step := decimal.NewFromFloat(r.Step)

	if maxCount <= 0 || maxCount > MaxRangeIncrements {
		maxCount = MaxRangeIncrements
	}
	// 先在十进制下比较，超大区间的个数可能超出 int64
	n := to.Sub(from).Div(step).Floor().Add(decimal.NewFromInt(1))
	if n.GreaterThan(decimal.NewFromInt(int64(maxCount))) {
		return nil, fmt.Errorf("range yields %s increments, at most %d allowed", n.String(), maxCount)
	}
	count := n.IntPart()

	out := make([]float64, 0, count)
	for i := int64(0); i < count; i++ {
		v := from.Add(step.Mul(decimal.NewFromInt(i)))
		out = append(out, v.InexactFloat64())
	}
	return out, nil
}
