package priceref

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedProvider struct{ price float64 }

func (f fixedProvider) FetchPrice(ctx context.Context) (float64, error) {
	return f.price, nil
}

func TestWithReverseInvertsPrice(t *testing.T) {
	p := WithReverse(fixedProvider{price: 4}, true)
	price, err := p.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.25, price)
}

func TestWithReverseNoopWhenDisabled(t *testing.T) {
	p := WithReverse(fixedProvider{price: 4}, false)
	price, err := p.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, price)
}

func TestValidateAcceptsWithinSafetyRatio(t *testing.T) {
	assert.NoError(t, Validate(3000, 3005, 0.05))
}

func TestValidateRejectsOutlier(t *testing.T) {
	err := Validate(6000, 3000, 0.05)
	assert.ErrorIs(t, err, ErrStalePrice)
}
