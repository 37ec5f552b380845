package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestController_NilEnforcesNothing(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireJob(context.Background()))
	require.True(t, c.TryAcquireJob())
	c.ReleaseJob()
	require.NoError(t, c.WaitIO(context.Background(), 1<<20))

	var buf bytes.Buffer
	w := c.PacedWriter(context.Background(), &buf)
	_, err := w.Write([]byte("unpaced"))
	require.NoError(t, err)
	require.Equal(t, "unpaced", buf.String())
}

func TestController_JobSlots(t *testing.T) {
	c := NewController(Config{MaxBackgroundJobs: 2})

	require.True(t, c.TryAcquireJob())
	require.True(t, c.TryAcquireJob())
	require.False(t, c.TryAcquireJob())

	c.ReleaseJob()
	require.True(t, c.TryAcquireJob())
}

func TestController_AcquireJobRespectsContext(t *testing.T) {
	c := NewController(Config{MaxBackgroundJobs: 1})
	require.NoError(t, c.AcquireJob(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, c.AcquireJob(ctx))
}

func TestController_PacedWriterDeliversAllBytes(t *testing.T) {
	// Small burst forces the writer to split its waits.
	c := NewController(Config{MaxBackgroundJobs: 1, IOLimitBytesPerSec: 64 * 1024})

	var buf bytes.Buffer
	w := c.PacedWriter(context.Background(), &buf)

	payload := bytes.Repeat([]byte("x"), 4096)
	n, err := w.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf.Bytes())
}

func TestController_PacedWriterCanceledContext(t *testing.T) {
	c := NewController(Config{MaxBackgroundJobs: 1, IOLimitBytesPerSec: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	w := c.PacedWriter(ctx, &buf)
	_, err := w.Write(bytes.Repeat([]byte("x"), 10))
	require.Error(t, err)
}
