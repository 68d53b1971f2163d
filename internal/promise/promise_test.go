package promise

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSettlesOnce(t *testing.T) {
	p := New[int]()

	assert.True(t, p.Resolve(42))
	assert.False(t, p.Resolve(7))
	assert.False(t, p.Reject(errors.New("late")))

	v, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRejectWins(t *testing.T) {
	p := New[string]()
	boom := errors.New("boom")

	assert.True(t, p.Reject(boom))
	assert.False(t, p.Resolve("too late"))

	_, err := p.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestAwaitHonoursContext(t *testing.T) {
	p := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.Settled())
}

func TestAwaitAfterSettle(t *testing.T) {
	p := Resolved("ok")
	require.True(t, p.Settled())

	v, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestConcurrentSettlement(t *testing.T) {
	p := New[int]()
	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			done <- p.Resolve(n)
		}(i)
	}

	winners := 0
	for i := 0; i < 10; i++ {
		if <-done {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
