package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/pkg/marketdata"
	"github.com/betbot/optcalc/pkg/optionsmath"
	"github.com/betbot/optcalc/pkg/portfolio"
)

func (s *Server) provider() (marketdata.Provider, error) {
	if s.cfg.Provider == nil {
		return nil, errors.Wrap(apperr.ErrUpstream, "market data provider is not configured")
	}
	return s.cfg.Provider, nil
}

func (s *Server) handleStockQuote(w http.ResponseWriter, r *http.Request) {
	symbol, err := marketdata.NormalizeSymbol(pathParam(r, "symbol"))
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
	q, err := marketdata.GetQuote(ctx, provider, symbol)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, q)
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	symbol, err := marketdata.NormalizeSymbol(pathParam(r, "symbol"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	query := r.URL.Query()

	var filter marketdata.ChainFilter
	if v := strings.TrimSpace(query.Get("type")); v != "" {
		t, err := optionsmath.ParseOptionType(v)
		if err != nil {
			writeAppError(w, r, apperr.Invalid("type", v, "must be call or put"))
			return
		}
		filter.Type = t
	}
	expiration := strings.TrimSpace(query.Get("expiration"))
	if expiration != "" {
		if err := marketdata.ValidateExpiration(expiration); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	provider, err := s.provider()
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()
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

	out := marketdata.Chain{Underlying: chain.Underlying, Expiration: chain.Expiration, Options: []marketdata.OptionQuote{}}
	for _, o := range chain.Options {
		if filter.Match(o) {
			out.Options = append(out.Options, o)
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleIndices(w http.ResponseWriter, r *http.Request) {
	provider, err := s.provider()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	ctx, cancel := s.upstreamContext(r)
	defer cancel()
	quotes, err := provider.Quotes(ctx, s.cfg.IndexSymbols)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"indices": quotes})
}

type portfolioRequest struct {
	Holdings []portfolio.Holding `json:"holdings"`
}

func (s *Server) handlePortfolioAnalyze(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	var errs apperr.ValidationErrors
	var symbols []string
	seen := map[string]bool{}
	for i := range req.Holdings {
		if strings.TrimSpace(req.Holdings[i].Symbol) == "" {
			continue
		}
		sym, err := marketdata.NormalizeSymbol(req.Holdings[i].Symbol)
		if err != nil {
			errs.Add(fmt.Sprintf("holdings[%d].symbol", i), req.Holdings[i].Symbol, "must be 1-12 characters of A-Z, 0-9, '.', '-', '^'")
			continue
		}
		req.Holdings[i].Symbol = sym
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if err := portfolio.Validate(req.Holdings); err != nil {
		errs = append(errs, apperr.Fields(err)...)
	}
	if err := errs.Err(); err != nil {
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
	quotes, err := provider.Quotes(ctx, symbols)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	prices := make(map[string]float64, len(quotes))
	for i, q := range quotes {
		prices[symbols[i]] = underlyingPrice(&q)
	}
	writeJSON(w, r, http.StatusOK, portfolio.Analyze(req.Holdings, prices))
}
