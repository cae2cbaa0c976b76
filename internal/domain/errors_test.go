package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageComposition(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient("graph.ListUsers", "request failed", cause)

	assert.Equal(t, "graph.ListUsers: request failed: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestKindOfUnwrapsThroughWrapping(t *testing.T) {
	err := RateLimited("partner.ListPrices", 120*time.Second, nil)
	wrapped := fmt.Errorf("sync failed: %w", err)

	assert.Equal(t, KindRateLimited, KindOf(wrapped))

	after, ok := RetryAfterOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, after)
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	err := NotFound("analysis.Get", "analysis does not exist")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transient("op", "m", nil)))
	assert.True(t, IsRetryable(RateLimited("op", 0, nil)))
	assert.False(t, IsRetryable(Unauthorized("op", "m")))
	assert.False(t, IsRetryable(BadRequest("op", "m")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "rate_limited", KindRateLimited.String())
	assert.Equal(t, "unauthorized", KindUnauthorized.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "bad_request", KindBadRequest.String())
	assert.Equal(t, "parse", KindParse.String())
	assert.Equal(t, "internal", KindInternal.String())
}
