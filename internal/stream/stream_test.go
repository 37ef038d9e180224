package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConvertFiltersNullAddressSentinel(t *testing.T) {
	wire := wireMessage{
		BlockNumber: 100,
		NewComponents: []wireComponent{
			{ID: "0x0000000000000000000000000000000000000000", Protocol: "uniswap_v3"},
			{ID: "0xabc", Protocol: "uniswap_v3", Tokens: []string{"0x1", "0x2"}},
		},
		RemovedComponents: []string{"0x0000000000000000000000000000000000000000", "0xdef"},
	}

	msg := convert(wire)

	assert.Equal(t, uint64(100), msg.BlockNumber)
	assert.Len(t, msg.NewComponents, 1)
	assert.Equal(t, "0xabc", string(msg.NewComponents[0].ID))
	assert.Len(t, msg.RemovedComponents, 1)
	assert.Equal(t, "0xdef", string(msg.RemovedComponents[0]))
}

func TestConvertParsesBalanceDeltas(t *testing.T) {
	wire := wireMessage{
		BlockNumber: 1,
		BalanceDeltas: map[string]map[string]string{
			"0xabc": {"0x1": "1000000000000000000"},
		},
	}

	msg := convert(wire)
	assert.Len(t, msg.BalanceDeltas, 1)
	bal := msg.BalanceDeltas["0xabc"]
	assert.NotNil(t, bal)
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(1*time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, nextBackoff(8*time.Second, 10*time.Second))
}

func TestIsNullSentinel(t *testing.T) {
	assert.True(t, isNullSentinel("0x0000000000000000000000000000000000000000"))
	assert.False(t, isNullSentinel("0xabc123"))
}
