// Package server 期权收益计算器的 HTTP 服务（gin 路由 + net/http 风格 handler）。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/optcalc/pkg/marketdata"
	"github.com/betbot/optcalc/pkg/optionsmath"
)

type Config struct {
	// Provider 行情数据源；为 nil 时行情相关接口返回 502
	Provider       marketdata.Provider
	Limits         optionsmath.Limits
	RequestTimeout time.Duration
	IndexSymbols   []string
	Mode           string // gin 模式，默认 release
	Now            func() time.Time
}

type Server struct {
	cfg  Config
	calc *optionsmath.Calculator
}

func New(cfg Config) (*Server, error) {
	if cfg.Limits.MaxOptions < 0 || cfg.Limits.MaxIncrements < 0 {
		return nil, errors.New("limits must not be negative")
	}
	if cfg.Limits == (optionsmath.Limits{}) {
		cfg.Limits = optionsmath.DefaultLimits()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if len(cfg.IndexSymbols) == 0 {
		cfg.IndexSymbols = []string{"SPY", "QQQ", "DIA", "IWM"}
	}
	if cfg.Mode == "" {
		cfg.Mode = gin.ReleaseMode
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{cfg: cfg, calc: optionsmath.NewCalculator(cfg.Limits)}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(s.cfg.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")

	calculator := api.Group("/calculator")
	calculator.POST("/options", s.wrap(s.handleCalculate))
	calculator.POST("/options/:symbol", s.wrap(s.handleCalculateSymbol))

	options := api.Group("/options")
	options.GET("/stock/:symbol", s.wrap(s.handleStockQuote))
	options.GET("/chain/:symbol", s.wrap(s.handleChain))

	api.GET("/market/indices", s.wrap(s.handleIndices))
	api.POST("/portfolio/analyze", s.wrap(s.handlePortfolioAnalyze))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "optcalc_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}

// upstreamContext 调用行情数据源时使用的带超时 context
func (s *Server) upstreamContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
}
