package optionsmath

// ContractMultiplier 每张期权合约对应的股数
const ContractMultiplier = 100

// 输入与中间量上限；在此范围内所有金额换算回 float64 都是有限值
const (
	MaxAmount          = 1e12 // 价格、行权价、权利金、投入资金
	MaxIncrementPct    = 1e6
	MaxContracts       = 1_000_000_000_000
	MaxRangeIncrements = 100_000 // maxCount<=0 时区间展开的硬上限
)

// OptionType 期权方向
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// ResultOrder 结果排列顺序：期权在外层，涨跌幅在内层。
// 第 i 个期权、第 j 个涨跌幅的结果下标为 i*len(increments)+j。
const ResultOrder = "options_outer"

// OptionContract 单个期权合约报价（每股口径，未乘合约乘数）。
//
// Price 为可选覆盖价（例如成交价），为空时使用 (Bid+Ask)/2。
// Type 为空时按看涨期权处理。
type OptionContract struct {
	Strike     float64    `json:"strike"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	Price      *float64   `json:"price,omitempty"`
	Type       OptionType `json:"type,omitempty"`
	Symbol     string     `json:"symbol,omitempty"`
	Expiration string     `json:"expiration,omitempty"`
}

// IncrementRange 以 [From, To] 闭区间、Step 步长生成涨跌幅（百分比）
type IncrementRange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
	Step float64 `json:"step"`
}

// CalculationRequest 计算请求
type CalculationRequest struct {
	SecurityPrice        float64          `json:"securityPrice"`
	InvestmentAmount     float64          `json:"investmentAmount"`
	Options              []OptionContract `json:"options"`
	PercentageIncrements []float64        `json:"percentageIncrements"`
	IncrementRange       *IncrementRange  `json:"incrementRange,omitempty"`
}

// ReturnStatus 收益率是否有定义
type ReturnStatus string

const (
	ReturnStatusOK ReturnStatus = "ok"
	// ReturnStatusUndefinedZeroPremium 权利金为 0，收益率无定义（ReturnPct 为 null）
	ReturnStatusUndefinedZeroPremium ReturnStatus = "undefined_zero_premium"
)

// CalculationResult 一个 (期权, 涨跌幅) 组合的到期收益估算。
//
// Contracts 为 0 时（资金不足一张或权利金为 0），金额类字段按一张合约归一化计算，
// 并设置 Normalized=true、Affordable=false。
type CalculationResult struct {
	OptionIndex         int        `json:"optionIndex"`
	IncrementIndex      int        `json:"incrementIndex"`
	Symbol              string     `json:"symbol,omitempty"`
	Type                OptionType `json:"type"`
	Strike              float64    `json:"strike"`
	PercentageIncrement float64    `json:"percentageIncrement"`

	Premium        float64 `json:"premium"`
	ProjectedPrice float64 `json:"projectedPrice"`
	IntrinsicValue float64 `json:"intrinsicValue"`
	ExtrinsicValue float64 `json:"extrinsicValue"`
	BreakevenPrice float64 `json:"breakevenPrice"`

	Contracts    int64   `json:"contracts"`
	Affordable   bool    `json:"affordable"`
	Normalized   bool    `json:"normalized"`
	TotalCost    float64 `json:"totalCost"`
	LeftoverCash float64 `json:"leftoverCash"`

	ProjectedValue float64      `json:"projectedValue"`
	ProfitLoss     float64      `json:"profitLoss"`
	ReturnPct      *float64     `json:"returnPct"`
	ReturnStatus   ReturnStatus `json:"returnStatus"`
}

// Limits 单次请求的规模上限
type Limits struct {
	MaxOptions    int
	MaxIncrements int
}

// DefaultLimits 默认规模上限（几十个行权价 × 几十个涨跌幅的常见规模留足余量）
func DefaultLimits() Limits {
	return Limits{
		MaxOptions:    500,
		MaxIncrements: 1000,
	}
}
