package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(interval time.Duration) (*Limiter, *time.Time) {
	l := New(interval)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestFirstRequestAllowed(t *testing.T) {
	l, _ := newTestLimiter(time.Minute)

	ok, wait := l.Allow("tenant-1:sync:users")
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestSecondRequestWithinWindowDenied(t *testing.T) {
	l, clock := newTestLimiter(time.Minute)

	ok, _ := l.Allow("tenant-1:sync:users")
	require.True(t, ok)

	*clock = clock.Add(10 * time.Second)
	ok, wait := l.Allow("tenant-1:sync:users")
	assert.False(t, ok)
	assert.InDelta(t, 50*time.Second, wait, float64(time.Second))
}

func TestWindowReopensAfterInterval(t *testing.T) {
	l, clock := newTestLimiter(time.Minute)

	ok, _ := l.Allow("tenant-1:sync:users")
	require.True(t, ok)

	*clock = clock.Add(61 * time.Second)
	ok, wait := l.Allow("tenant-1:sync:users")
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Minute)

	ok, _ := l.Allow("tenant-1:sync:users")
	require.True(t, ok)

	ok, _ = l.Allow("tenant-1:sync:licenses")
	assert.True(t, ok, "different operation on the same tenant is a separate key")

	ok, _ = l.Allow("tenant-2:sync:users")
	assert.True(t, ok, "same operation on another tenant is a separate key")
}

func TestDeniedCallDoesNotExtendWindow(t *testing.T) {
	l, clock := newTestLimiter(time.Minute)

	ok, _ := l.Allow("tenant-1:sync:users")
	require.True(t, ok)

	// Hammering during the closed window must not push the reopen time out.
	for i := 0; i < 5; i++ {
		*clock = clock.Add(5 * time.Second)
		ok, _ = l.Allow("tenant-1:sync:users")
		require.False(t, ok)
	}

	*clock = clock.Add(40 * time.Second)
	ok, _ = l.Allow("tenant-1:sync:users")
	assert.True(t, ok)
}
