package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misung-crm/misung-crm/jobs"
)

func TestJobsCLIWarmupAndStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewJobsCLI(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, c.Run(ctx, []string{"warmup", "2025"}, &out))
	assert.Contains(t, out.String(), "enqueued "+jobs.TaskStatsWarmup)
	assert.Contains(t, out.String(), "queue="+jobs.QueueDefault)

	pending, err := mr.List("asynq:{" + jobs.QueueDefault + "}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestJobsCLIRejectsBadArguments(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewJobsCLI(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	var out bytes.Buffer
	assert.Error(t, c.Run(ctx, nil, &out))
	assert.Error(t, c.Run(ctx, []string{"warmup", "soon"}, &out))
	assert.Error(t, c.Run(ctx, []string{"purge"}, &out))
	assert.Empty(t, out.String())
}
