package configwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"riceserver/internal/logging"

	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultApplyTimeout = 2 * time.Minute
	DefaultQueueSize    = 16
)

var ErrBridgeClosed = errors.New("apply bridge is closed")

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	QueueSize int
	Timeout   time.Duration
	Logger    *logging.Logger
}

// Bridge runs jobs one at a time on a single worker goroutine. Callers block
// until their job has finished, so side effects are complete on return.
type Bridge struct {
	jobs    chan bridgeJob
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *logging.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type bridgeJob struct {
	name   string
	fn     func(context.Context) error
	span   trace.SpanContext
	done   chan error
	queued time.Time
}

func NewBridge(options BridgeOptions) *Bridge {
	queueSize := options.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = DefaultApplyTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	bridge := &Bridge{
		jobs:    make(chan bridgeJob, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		logger:  logger,
	}
	bridge.wg.Add(1)
	go bridge.work()
	return bridge
}

// Run queues fn and waits for it to finish. ctx only bounds the wait for a
// queue slot; once queued the job runs under the bridge's own timeout. Run
// must not be called from inside a job.
func (bridge *Bridge) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	if bridge == nil {
		return ErrBridgeClosed
	}
	if fn == nil {
		return errors.New("job is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	job := bridgeJob{
		name:   name,
		fn:     fn,
		span:   trace.SpanContextFromContext(ctx),
		done:   make(chan error, 1),
		queued: time.Now(),
	}

	bridge.mu.RLock()
	if bridge.closed {
		bridge.mu.RUnlock()
		return ErrBridgeClosed
	}
	select {
	case bridge.jobs <- job:
	case <-ctx.Done():
		bridge.mu.RUnlock()
		return ctx.Err()
	case <-bridge.ctx.Done():
		bridge.mu.RUnlock()
		return ErrBridgeClosed
	}
	bridge.mu.RUnlock()

	return <-job.done
}

// Close stops accepting jobs, cancels the in-flight job's context, waits for
// it and fails every job still queued with ErrBridgeClosed.
func (bridge *Bridge) Close() error {
	if bridge == nil {
		return nil
	}
	bridge.cancel()

	bridge.mu.Lock()
	if bridge.closed {
		bridge.mu.Unlock()
		return nil
	}
	bridge.closed = true
	bridge.mu.Unlock()

	bridge.wg.Wait()
	for {
		select {
		case job := <-bridge.jobs:
			job.done <- ErrBridgeClosed
		default:
			return nil
		}
	}
}

// Pending reports the number of queued jobs.
func (bridge *Bridge) Pending() int {
	if bridge == nil {
		return 0
	}
	return len(bridge.jobs)
}

func (bridge *Bridge) work() {
	defer bridge.wg.Done()
	for {
		select {
		case <-bridge.ctx.Done():
			return
		case job := <-bridge.jobs:
			if bridge.ctx.Err() != nil {
				job.done <- ErrBridgeClosed
				continue
			}
			job.done <- bridge.execute(job)
		}
	}
}

func (bridge *Bridge) execute(job bridgeJob) (err error) {
	ctx, cancel := context.WithTimeout(bridge.ctx, bridge.timeout)
	defer cancel()
	if job.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, job.span)
	}

	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("job %s panicked: %v", job.name, recovered)
		}
		fields := map[string]string{
			"job":      job.name,
			"waited":   start.Sub(job.queued).String(),
			"duration": time.Since(start).String(),
		}
		if err != nil {
			fields["error"] = err.Error()
			bridge.logger.Warn("apply job failed", fields)
			return
		}
		bridge.logger.Debug("apply job finished", fields)
	}()

	if err := job.fn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("job %s timed out after %s: %w", job.name, bridge.timeout, err)
		}
		return err
	}
	return nil
}
