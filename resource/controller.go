// Package resource bounds the background work the engine may run
// concurrently with live capture.
package resource

import (
	"context"
	"io"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxBackgroundJobs is the maximum number of concurrent export,
	// load and cleanup jobs. If 0, defaults to 1.
	MaxBackgroundJobs int64

	// IOLimitBytesPerSec caps the write throughput of export jobs so a
	// large merge cannot starve the capture write queue. If 0,
	// unlimited.
	IOLimitBytesPerSec int64
}

// Controller hands out background job slots and paces export IO.
// A nil Controller is valid and enforces nothing.
type Controller struct {
	jobSem    *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a controller for the given limits.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundJobs <= 0 {
		cfg.MaxBackgroundJobs = 1
	}

	c := &Controller{
		jobSem: semaphore.NewWeighted(cfg.MaxBackgroundJobs),
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireJob reserves a background job slot, blocking until one is free
// or ctx is canceled.
func (c *Controller) AcquireJob(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.jobSem.Acquire(ctx, 1)
}

// TryAcquireJob reserves a slot without blocking.
func (c *Controller) TryAcquireJob() bool {
	if c == nil {
		return true
	}
	return c.jobSem.TryAcquire(1)
}

// ReleaseJob releases a background job slot.
func (c *Controller) ReleaseJob() {
	if c == nil {
		return
	}
	c.jobSem.Release(1)
}

// WaitIO blocks until the IO limit allows writing the given number of
// bytes.
func (c *Controller) WaitIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// PacedWriter wraps w so every Write first waits for IO budget.
func (c *Controller) PacedWriter(ctx context.Context, w io.Writer) io.Writer {
	if c == nil || c.ioLimiter == nil {
		return w
	}
	return &pacedWriter{ctx: ctx, c: c, w: w}
}

type pacedWriter struct {
	ctx context.Context
	c   *Controller
	w   io.Writer
}

func (p *pacedWriter) Write(b []byte) (int, error) {
	// rate.Limiter rejects waits larger than its burst; split them.
	burst := p.c.ioLimiter.Burst()
	for off := 0; off < len(b); off += burst {
		n := len(b) - off
		if n > burst {
			n = burst
		}
		if err := p.c.ioLimiter.WaitN(p.ctx, n); err != nil {
			return 0, err
		}
	}
	return p.w.Write(b)
}
