package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/pkg/optionsmath"
)

func TestNormalizeSymbol(t *testing.T) {
	sym, err := NormalizeSymbol("  brk.b ")
	require.NoError(t, err)
	assert.Equal(t, "BRK.B", sym)

	sym, err = NormalizeSymbol("^spx")
	require.NoError(t, err)
	assert.Equal(t, "^SPX", sym)

	for _, bad := range []string{"", "AAPL;DROP", "THISISWAYTOOLONG", "a b"} {
		_, err := NormalizeSymbol(bad)
		assert.True(t, errors.Is(err, apperr.ErrInvalidRequest), bad)
	}
}

func TestValidateExpiration(t *testing.T) {
	assert.NoError(t, ValidateExpiration("2026-11-20"))
	assert.Error(t, ValidateExpiration("11/20/2026"))
	assert.Error(t, ValidateExpiration("2026-13-01"))
}

func TestNearestExpiration(t *testing.T) {
	fake := &fakeProvider{expirations: []string{"2026-10-16", "2026-10-19", "2026-11-20"}}
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

	exp, err := NearestExpiration(context.Background(), fake, "AAPL", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", exp)

	_, err = NearestExpiration(context.Background(), fake, "AAPL", now.AddDate(1, 0, 0))
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))
}

func TestChainContracts_Filter(t *testing.T) {
	chain := &Chain{Options: []OptionQuote{
		{Symbol: "C90", Type: optionsmath.OptionTypeCall, Strike: 90, Bid: 11, Ask: 11.5},
		{Symbol: "C100", Type: optionsmath.OptionTypeCall, Strike: 100, Bid: 3, Ask: 3.2},
		{Symbol: "P100", Type: optionsmath.OptionTypePut, Strike: 100, Bid: 2.8, Ask: 3},
		{Symbol: "CROSSED", Type: optionsmath.OptionTypeCall, Strike: 105, Bid: 2, Ask: 1.5},
		{Symbol: "C110", Type: optionsmath.OptionTypeCall, Strike: 110, Bid: 0.5, Ask: 0.6},
	}}

	all := chain.Contracts(ChainFilter{})
	assert.Len(t, all, 4)

	got := chain.Contracts(ChainFilter{Type: optionsmath.OptionTypeCall, MinStrike: 95, MaxStrike: 110})
	require.Len(t, got, 2)
	assert.Equal(t, "C100", got[0].Symbol)
	assert.Equal(t, "C110", got[1].Symbol)
	assert.Equal(t, 3.2, got[0].Ask)
}

func TestChainContracts_SkipsNonStandardSize(t *testing.T) {
	chain := &Chain{Options: []OptionQuote{
		{Symbol: "C100", Type: optionsmath.OptionTypeCall, Strike: 100, Bid: 3, Ask: 3.2, ContractSize: 100},
		{Symbol: "C100MINI", Type: optionsmath.OptionTypeCall, Strike: 100, Bid: 0.3, Ask: 0.32, ContractSize: 10},
		{Symbol: "C100ADJ", Type: optionsmath.OptionTypeCall, Strike: 100, Bid: 4, Ask: 4.4, ContractSize: 150},
		{Symbol: "C105", Type: optionsmath.OptionTypeCall, Strike: 105, Bid: 1, Ask: 1.2},
	}}

	got := chain.Contracts(ChainFilter{})
	require.Len(t, got, 2)
	assert.Equal(t, "C100", got[0].Symbol)
	assert.Equal(t, "C105", got[1].Symbol)
}
