package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/pkg/optionsmath"
)

type calcOptions struct {
	price      float64
	invest     float64
	options    []string
	increments []float64
	rangeSpec  string
	file       string
	jsonOut    bool
	maxOptions int
	maxIncr    int
}

func newCalcCmd() *cobra.Command {
	opts := &calcOptions{}
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate option returns for projected price moves",
		Long: `Calculate profit/loss and return for each option at each projected
percentage move of the underlying. Results are ordered options outer,
increments inner.`,
		Example: `  optcalc calc --price 100 --invest 1000 --option 100:4:6 --increments 0,10
  optcalc calc --price 100 --invest 5000 --option 95:7:7.4:call --option 105:6.1:6.5:put --range -20:20:5
  optcalc calc --file request.json --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			calc := optionsmath.NewCalculator(optionsmath.Limits{MaxOptions: opts.maxOptions, MaxIncrements: opts.maxIncr})
			results, err := calc.Calculate(req)
			if err != nil {
				return describe(err)
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			renderTable(out, req, results)
			return nil
		},
	}

	limits := optionsmath.DefaultLimits()
	f := cmd.Flags()
	f.Float64Var(&opts.price, "price", 0, "current underlying price")
	f.Float64Var(&opts.invest, "invest", 0, "amount to invest")
	f.StringArrayVar(&opts.options, "option", nil, "option contract strike:bid:ask[:call|put] (repeatable)")
	f.Float64SliceVar(&opts.increments, "increments", nil, "percentage moves, e.g. -10,0,10")
	f.StringVar(&opts.rangeSpec, "range", "", "percentage moves as from:to:step, e.g. -20:20:5")
	f.StringVar(&opts.file, "file", "", "read the calculation request from a JSON file ('-' for stdin)")
	f.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	f.IntVar(&opts.maxOptions, "max-options", limits.MaxOptions, "maximum number of option contracts")
	f.IntVar(&opts.maxIncr, "max-increments", limits.MaxIncrements, "maximum number of percentage moves")
	cmd.MarkFlagsMutuallyExclusive("increments", "range")
	cmd.MarkFlagsMutuallyExclusive("file", "option")
	return cmd
}

// request 从文件或命令行参数构造计算请求
func (o *calcOptions) request() (optionsmath.CalculationRequest, error) {
	var req optionsmath.CalculationRequest
	if o.file != "" {
		var r io.Reader = os.Stdin
		if o.file != "-" {
			f, err := os.Open(o.file)
			if err != nil {
				return req, errors.Wrap(err, "open request file")
			}
			defer f.Close()
			r = f
		}
		if err := json.NewDecoder(r).Decode(&req); err != nil {
			return req, errors.Wrap(err, "decode request file")
		}
	}

	// 命令行参数覆盖文件中的值
	if o.price != 0 {
		req.SecurityPrice = o.price
	}
	if o.invest != 0 {
		req.InvestmentAmount = o.invest
	}
	for _, s := range o.options {
		c, err := parseOption(s)
		if err != nil {
			return req, err
		}
		req.Options = append(req.Options, c)
	}
	if len(o.increments) > 0 {
		req.PercentageIncrements = o.increments
		req.IncrementRange = nil
	}
	if o.rangeSpec != "" {
		r, err := parseRange(o.rangeSpec)
		if err != nil {
			return req, err
		}
		req.IncrementRange = &r
		req.PercentageIncrements = nil
	}
	return req, nil
}

// parseOption 解析 strike:bid:ask[:type]
func parseOption(s string) (optionsmath.OptionContract, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return optionsmath.OptionContract{}, fmt.Errorf("option %q: want strike:bid:ask[:call|put]", s)
	}
	nums := make([]float64, 3)
	for i, name := range []string{"strike", "bid", "ask"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return optionsmath.OptionContract{}, fmt.Errorf("option %q: invalid %s %q", s, name, parts[i])
		}
		nums[i] = v
	}
	c := optionsmath.OptionContract{Strike: nums[0], Bid: nums[1], Ask: nums[2], Type: optionsmath.OptionTypeCall}
	if len(parts) == 4 {
		t, err := optionsmath.ParseOptionType(parts[3])
		if err != nil {
			return optionsmath.OptionContract{}, fmt.Errorf("option %q: %v", s, err)
		}
		c.Type = t
	}
	return c, nil
}

// parseRange 解析 from:to:step
func parseRange(s string) (optionsmath.IncrementRange, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return optionsmath.IncrementRange{}, fmt.Errorf("range %q: want from:to:step", s)
	}
	var nums [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return optionsmath.IncrementRange{}, fmt.Errorf("range %q: invalid number %q", s, p)
		}
		nums[i] = v
	}
	return optionsmath.IncrementRange{From: nums[0], To: nums[1], Step: nums[2]}, nil
}

// describe 把校验错误展开为多行，便于在终端阅读
func describe(err error) error {
	fields := apperr.Fields(err)
	if len(fields) == 0 {
		return err
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, "  "+f.Error())
	}
	return fmt.Errorf("invalid request:\n%s", strings.Join(lines, "\n"))
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))
	titleStyle = lipgloss.NewStyle().
			Bold(true)
	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")) // 绿色
	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

var tableColumns = []struct {
	title string
	width int
}{
	{"Move %", 8},
	{"Proj. Price", 12},
	{"Intrinsic", 10},
	{"Value", 12},
	{"P/L", 12},
	{"Return", 10},
}

func cell(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Right).Render(s)
}

// renderTable 每个期权一个表格块
func renderTable(w io.Writer, req optionsmath.CalculationRequest, results []optionsmath.CalculationResult) {
	var header []string
	for _, c := range tableColumns {
		header = append(header, headerStyle.Render(cell(c.title, c.width)))
	}
	headerLine := lipgloss.JoinHorizontal(lipgloss.Top, header...)

	perOption := len(results) / max(1, len(req.Options))
	for i := 0; i < len(req.Options); i++ {
		rows := results[i*perOption : (i+1)*perOption]
		if len(rows) == 0 {
			continue
		}
		first := rows[0]
		title := fmt.Sprintf("#%d %s %.2f  premium %.2f  contracts %d  cost %.2f  breakeven %.2f",
			i+1, strings.ToUpper(string(first.Type)), first.Strike, first.Premium,
			first.Contracts, first.TotalCost, first.BreakevenPrice)
		fmt.Fprintln(w, titleStyle.Render(title))
		if first.Normalized {
			fmt.Fprintln(w, dimStyle.Render("  (amounts shown for one contract)"))
		}
		fmt.Fprintln(w, headerLine)

		for _, r := range rows {
			ret := "n/a"
			if r.ReturnPct != nil {
				ret = fmt.Sprintf("%.2f%%", *r.ReturnPct)
			}
			pl := cell(fmt.Sprintf("%.2f", r.ProfitLoss), 12)
			switch {
			case r.ProfitLoss > 0:
				pl = upStyle.Render(pl)
			case r.ProfitLoss < 0:
				pl = downStyle.Render(pl)
			}
			fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top,
				cell(fmt.Sprintf("%+.2f", r.PercentageIncrement), 8),
				cell(fmt.Sprintf("%.2f", r.ProjectedPrice), 12),
				cell(fmt.Sprintf("%.2f", r.IntrinsicValue), 10),
				cell(fmt.Sprintf("%.2f", r.ProjectedValue), 12),
				pl,
				cell(ret, 10),
			))
		}
		fmt.Fprintln(w)
	}
}
