package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSmallLoad(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	var out bytes.Buffer
	err := run(context.Background(), &out, options{clients: 4, concurrency: 3, ops: 20, prefix: "t"})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "using miniredis")
	assert.Contains(t, text, "login: ops=20 failures=0")
	assert.Contains(t, text, "hydrate: ops=20 failures=0")
}

func TestRunRejectsBadOptions(t *testing.T) {
	err := run(context.Background(), &bytes.Buffer{}, options{clients: 0, concurrency: 1, ops: 1})
	assert.Error(t, err)
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}
