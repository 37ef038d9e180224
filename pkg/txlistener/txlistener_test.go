package txlistener

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsApplyOverDefaults(t *testing.T) {
	l := &listener{pollInterval: 3 * time.Second, timeout: 5 * time.Minute}

	WithPollInterval(500 * time.Millisecond)(l)
	WithTimeout(10 * time.Second)(l)

	assert.Equal(t, 500*time.Millisecond, l.pollInterval)
	assert.Equal(t, 10*time.Second, l.timeout)
}

func TestNewTxListenerDefaults(t *testing.T) {
	tl := NewTxListener(nil)
	impl, ok := tl.(*listener)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, impl.pollInterval)
	assert.Equal(t, 5*time.Minute, impl.timeout)
}
