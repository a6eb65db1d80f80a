package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"
)

// RetryPolicy configures automatic retries for transient provider failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the base for exponential backoff:
	// min(BaseDelay * 2^attempt, MaxDelay) plus up to BaseDelay of jitter.
	BaseDelay time.Duration

	// MaxDelay caps the exponential part of the delay.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth retrying. Nil uses
	// IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries three times with a short backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Validate reports configuration errors.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", rp.MaxAttempts)
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return fmt.Errorf("max delay %v is below base delay %v", rp.MaxDelay, rp.BaseDelay)
	}
	return nil
}

// retryingModel wraps a ChatModel with a RetryPolicy.
type retryingModel struct {
	next   ChatModel
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error

	// mu guards rng; one wrapped model serves concurrent runs.
	mu  sync.Mutex
	rng *rand.Rand
}

// WithRetry returns a ChatModel that retries next according to policy.
func WithRetry(next ChatModel, policy RetryPolicy) ChatModel {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	return &retryingModel{
		next:   next,
		policy: policy,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
		sleep:  sleepContext,
	}
}

// Chat implements ChatModel.
func (r *retryingModel) Chat(ctx context.Context, messages []Message, opts ...CallOption) (ChatOut, error) {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		out, err := r.next.Chat(ctx, messages, opts...)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !r.policy.Retryable(err) || attempt == r.policy.MaxAttempts-1 {
			break
		}
		if err := r.sleep(ctx, r.backoff(attempt)); err != nil {
			return ChatOut{}, err
		}
	}
	return ChatOut{}, lastErr
}

func (r *retryingModel) backoff(attempt int) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return computeBackoff(attempt, r.policy.BaseDelay, r.policy.MaxDelay, r.rng)
}

// computeBackoff returns the delay before retry number attempt (0-based).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if maxDelay > 0 && delay >= maxDelay {
			break
		}
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64 / 2
			break
		}
		delay *= 2
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if rng != nil {
		delay += time.Duration(rng.Int63n(int64(base)))
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTransient reports whether err looks like a temporary provider failure:
// rate limits, server errors, timeouts and network trouble. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"429", "rate limit", "rate_limit", "too many requests",
		"500", "502", "503", "504", "overloaded",
		"timeout", "connection reset", "connection refused", "temporary",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
