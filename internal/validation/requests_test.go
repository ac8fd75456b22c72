package validation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

func intPtr(i int) *int { return &i }

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(" 0x00000000000000000000000000000000000a11ce ")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa11ce"), addr)

	for _, raw := range []string{"", "0x123", "not-an-address", "0x0000000000000000000000000000000000000000"} {
		_, err := ParseAddress(raw)
		assert.ErrorIs(t, err, ledger.ErrValidation, raw)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "base units", raw: "1500000000000000000", want: "1500000000000000000"},
		{name: "whole tokens", raw: "1.5", want: "1500000000000000000"},
		{name: "fraction only", raw: ".25", want: "250000000000000000"},
		{name: "trailing point", raw: "3.", want: "3000000000000000000"},
		{name: "smallest unit", raw: "0.000000000000000001", want: "1"},
		{name: "too many decimals", raw: "0.0000000000000000001", wantErr: true},
		{name: "zero", raw: "0", wantErr: true},
		{name: "zero tokens", raw: "0.0", wantErr: true},
		{name: "negative", raw: "-1", wantErr: true},
		{name: "negative tokens", raw: "-1.5", wantErr: true},
		{name: "garbage", raw: "ten", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ledger.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Dec())
		})
	}
}

func TestParseIndexAndLimit(t *testing.T) {
	i, err := ParseIndex("3")
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	for _, raw := range []string{"-1", "x", "", "1048576"} {
		_, err := ParseIndex(raw)
		assert.ErrorIs(t, err, ledger.ErrValidation, raw)
	}

	n, err := ParseLimit("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryLimit, n)

	n, err = ParseLimit("5000")
	require.NoError(t, err)
	assert.Equal(t, MaxHistoryLimit, n)

	_, err = ParseLimit("0")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestOpenRequest(t *testing.T) {
	amount, period, err := OpenRequest{Amount: "10", PeriodIndex: intPtr(2)}.Parse()
	require.NoError(t, err)
	assert.Equal(t, "10", amount.Dec())
	assert.Equal(t, 2, period)

	_, _, err = OpenRequest{Amount: "10"}.Parse()
	assert.ErrorIs(t, err, ledger.ErrValidation, "period is required")

	_, _, err = OpenRequest{Amount: "10", PeriodIndex: intPtr(-2)}.Parse()
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, _, err = OpenRequest{PeriodIndex: intPtr(1)}.Parse()
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestPeriodRequest(t *testing.T) {
	_, ok, err := PeriodRequest{}.Parse()
	require.NoError(t, err)
	assert.False(t, ok)

	i, ok, err := PeriodRequest{PeriodIndex: intPtr(4)}.Parse()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, i)

	_, ok, err = PeriodRequest{PeriodIndex: intPtr(-1)}.Parse()
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.False(t, ok)
}

func TestAdminRequests(t *testing.T) {
	rate, err := RateRequest{RateBps: 2500}.Parse()
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), rate)

	_, err = RateRequest{}.Parse()
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = RateRequest{RateBps: types.BasisPoints + 1}.Parse()
	assert.ErrorIs(t, err, ledger.ErrValidation)

	on := true
	active, err := ToggleRequest{Active: &on}.Parse()
	require.NoError(t, err)
	assert.True(t, active)
	_, err = ToggleRequest{}.Parse()
	assert.ErrorIs(t, err, ledger.ErrValidation)

	addr, amount, err := TokenRequest{Account: "0x00000000000000000000000000000000000000b0", Amount: "2.5"}.Parse()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xb0"), addr)
	assert.Equal(t, "2500000000000000000", amount.Dec())
}
