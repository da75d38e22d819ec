package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/pilotcli/pilot/internal/status"
)

const (
	// retryMaxAttempts bounds rate-limit retries for one logical call.
	retryMaxAttempts = 10
	// retryInitialDelay seeds the exponential backoff.
	retryInitialDelay = 5 * time.Second
	// retryMaxDelay caps both backoff growth and server-supplied hints.
	retryMaxDelay = 60 * time.Second
	// retryJitterFraction spreads delays by ±30% to avoid thundering herds.
	retryJitterFraction = 0.3
)

// ErrRateLimitExhausted reports that every retry budgeted for a single
// call was consumed by rate limiting.
var ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

// RetryingClient wraps a Streamer with rate-limit-aware backoff.
//
// Only failures before the first delivered chunk are retried: once any
// output has reached the caller, replaying the stream would duplicate or
// corrupt it, so a mid-stream failure propagates immediately.
type RetryingClient struct {
	// Transport performs the underlying streaming call.
	Transport Streamer
	// Status receives human-readable wait notifications, when attached.
	Status *status.Manager

	// sleep is replaceable in tests; defaults to a context-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryingClient wraps a transport with retry behavior.
func NewRetryingClient(transport Streamer, statusManager *status.Manager) *RetryingClient {
	return &RetryingClient{
		Transport: transport,
		Status:    statusManager,
		sleep:     sleepContext,
	}
}

// StreamChat runs one logical streaming call, retrying rate-limited
// attempts with jittered exponential backoff.
func (c *RetryingClient) StreamChat(ctx context.Context, req *ChatRequest, handler StreamHandler) error {
	baseDelay := retryInitialDelay

	for attempt := 1; ; attempt++ {
		chunkDelivered := false
		err := c.Transport.StreamChat(ctx, req, func(event StreamEvent) error {
			chunkDelivered = true
			return handler(event)
		})
		if err == nil {
			return nil
		}

		// Partial output cannot be replayed safely, whatever the cause.
		if chunkDelivered {
			return err
		}
		if !Classify(err).Retryable() {
			return err
		}
		if attempt >= retryMaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrRateLimitExhausted, retryMaxAttempts, err)
		}

		delay := baseDelay
		if hint, ok := RetryHint(err); ok {
			delay = hint
		}
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
		wait := applyJitter(delay)

		notice := fmt.Sprintf("[Rate limit] Waiting %.1fs before resuming (attempt %d/%d)...",
			wait.Seconds(), attempt, retryMaxAttempts)
		if c.Status != nil {
			c.Status.Update(notice)
		}
		// The notification is synthetic and does not start the stream.
		if err := handler(StreamEvent{Notice: notice}); err != nil {
			return err
		}

		if err := c.sleep(ctx, wait); err != nil {
			return err
		}

		baseDelay *= 2
		if baseDelay > retryMaxDelay {
			baseDelay = retryMaxDelay
		}
	}
}

// applyJitter spreads a delay uniformly by ±retryJitterFraction, never
// going below zero.
func applyJitter(delay time.Duration) time.Duration {
	jitter := float64(delay) * retryJitterFraction * (rand.Float64()*2 - 1)
	jittered := time.Duration(float64(delay) + jitter)
	if jittered < 0 {
		return 0
	}
	return jittered
}

// sleepContext sleeps for the duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
