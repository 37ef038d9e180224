package blackholedex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestRouteFieldsRoundTrip(t *testing.T) {
	r := Route{
		Pair:     common.HexToAddress("0x14e4a5bed2e5e688ee1a5ca3a4914250d1abd573"),
		From:     common.HexToAddress("0xb31f66aa3c1e785363f0875a1b74e27b85fd66c7"),
		To:       common.HexToAddress("0xcd94a87696fac69edae3a70fe5725307ae1c43f6"),
		Stable:   false,
		Receiver: common.HexToAddress("0xb4dd4fb3d4bced984cce972991fb100488b59223"),
	}

	assert.NotEqual(t, r.From, r.To)
	assert.Equal(t, common.HexToAddress("0xb4dd4fb3d4bced984cce972991fb100488b59223"), r.Receiver)
}

func TestSWAPExactTokensForTokensParamsHoldsSingleHopRoute(t *testing.T) {
	params := SWAPExactTokensForTokensParams{
		AmountIn:     big.NewInt(1_000000000000000000),
		AmountOutMin: big.NewInt(990000000000000000),
		Routes: []Route{
			{
				From: common.HexToAddress("0xb31f66aa3c1e785363f0875a1b74e27b85fd66c7"),
				To:   common.HexToAddress("0xcd94a87696fac69edae3a70fe5725307ae1c43f6"),
			},
		},
		To:       common.HexToAddress("0xb4dd4fb3d4bced984cce972991fb100488b59223"),
		Deadline: big.NewInt(1764227713),
	}

	a := assert.New(t)
	a.Len(params.Routes, 1)
	a.True(params.AmountIn.Cmp(params.AmountOutMin) > 0)
	a.NotEqual(params.Routes[0].From, params.Routes[0].To)
}
