package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunContextAppliesTimeout(t *testing.T) {
	start := time.Now()
	ctx, cancel := runContext(context.Background(), 10*time.Minute)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, start.Add(10*time.Minute), deadline, time.Second)
}

func TestRunContextWithoutTimeout(t *testing.T) {
	ctx, cancel := runContext(context.Background(), 0)
	_, ok := ctx.Deadline()
	assert.False(t, ok)

	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestRunContextFollowsParent(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	ctx, cancel := runContext(parent, time.Hour)
	defer cancel()

	stop()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
