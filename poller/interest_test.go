package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterestValid(t *testing.T) {
	assert.True(t, Accept.valid())
	assert.True(t, Read.valid())
	assert.True(t, Write.valid())
	assert.True(t, (Read | Write).valid())

	assert.False(t, Interest(0).valid())
	assert.False(t, (Accept | Read).valid())
	assert.False(t, (Accept | Write).valid())
	assert.False(t, Interest(1<<5).valid())
}

func TestReadyForOnlyReportsRegisteredInterest(t *testing.T) {
	assert.Equal(t, Read, readyFor(Read, true, true, false))
	assert.Equal(t, Interest(0), readyFor(Read, false, true, false))
	assert.Equal(t, Write, readyFor(Write, true, true, false))
	assert.Equal(t, Interest(0), readyFor(Write, true, false, false))
	assert.Equal(t, Accept, readyFor(Accept, true, false, false))

	// 异常按注册的关注位上报
	assert.Equal(t, Read, readyFor(Read, false, false, true))
	assert.Equal(t, Write, readyFor(Write, false, false, true))
	assert.Equal(t, Read|Write, readyFor(Read|Write, false, false, true))
}

func TestTimeoutMillis(t *testing.T) {
	assert.Equal(t, -1, timeoutMillis(-1))
	assert.Equal(t, 0, timeoutMillis(0))
	assert.Equal(t, 1, timeoutMillis(time.Microsecond))
	assert.Equal(t, 5, timeoutMillis(5*time.Millisecond))
	assert.Equal(t, 6, timeoutMillis(5*time.Millisecond+1))
}

func TestInterestString(t *testing.T) {
	assert.Equal(t, "read", Read.String())
	assert.Equal(t, "read|write", (Read | Write).String())
	assert.Equal(t, "invalid", (Accept | Write).String())
}
