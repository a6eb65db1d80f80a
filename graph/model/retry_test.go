package model

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		mock := &MockChatModel{Handler: func([]Message, CallOptions) (ChatOut, error) {
			calls++
			if calls < 3 {
				return ChatOut{}, errors.New("503 service unavailable")
			}
			return ChatOut{Text: "ok"}, nil
		}}
		m := WithRetry(mock, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}).(*retryingModel)
		m.sleep = noSleep

		out, err := m.Chat(ctx, nil)
		if err != nil || out.Text != "ok" {
			t.Fatalf("Chat = (%+v, %v)", out, err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		mock := &MockChatModel{Err: errors.New("429 too many requests")}
		m := WithRetry(mock, RetryPolicy{MaxAttempts: 2}).(*retryingModel)
		m.sleep = noSleep

		if _, err := m.Chat(ctx, nil); err == nil {
			t.Fatal("expected error")
		}
		if mock.CallCount() != 2 {
			t.Errorf("calls = %d, want 2", mock.CallCount())
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		mock := &MockChatModel{Err: errors.New("401 invalid api key")}
		m := WithRetry(mock, DefaultRetryPolicy()).(*retryingModel)
		m.sleep = noSleep

		_, _ = m.Chat(ctx, nil)
		if mock.CallCount() != 1 {
			t.Errorf("calls = %d, want 1", mock.CallCount())
		}
	})

	t.Run("stops when context is cancelled during backoff", func(t *testing.T) {
		mock := &MockChatModel{Err: errors.New("timeout")}
		cctx, cancel := context.WithCancel(ctx)
		m := WithRetry(mock, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}).(*retryingModel)
		m.sleep = func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}

		if _, err := m.Chat(cctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

func TestComputeBackoff(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base, maxDelay := 100*time.Millisecond, time.Second

	for attempt, floor := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second} {
		got := computeBackoff(attempt, base, maxDelay, rng)
		if got < floor || got >= floor+base {
			t.Errorf("attempt %d: backoff %v outside [%v, %v)", attempt, got, floor, floor+base)
		}
	}
	if got := computeBackoff(62, base, maxDelay, rng); got < maxDelay || got >= maxDelay+base {
		t.Errorf("attempt 62: backoff %v outside [%v, %v)", got, maxDelay, maxDelay+base)
	}
	if got := computeBackoff(3, 0, time.Second, rng); got != 0 {
		t.Errorf("zero base backoff = %v", got)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.New("POST /v1/messages: 529 overloaded"), true},
		{errors.New("rate_limit_error"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("400 bad request"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	if err := (RetryPolicy{MaxAttempts: 0}).Validate(); err == nil {
		t.Error("expected error for zero attempts")
	}
	if err := (RetryPolicy{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Millisecond}).Validate(); err == nil {
		t.Error("expected error for max below base")
	}
	if err := DefaultRetryPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}

func TestWithRetry_ConcurrentCallers(t *testing.T) {
	mock := &MockChatModel{Err: errors.New("503 service unavailable")}
	m := WithRetry(mock, RetryPolicy{MaxAttempts: 50, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}).(*retryingModel)
	var slept sync.Map
	m.sleep = func(_ context.Context, d time.Duration) error {
		slept.Store(d, true)
		return nil
	}

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Chat(context.Background(), nil); err == nil {
				t.Error("expected error")
			}
		}()
	}
	wg.Wait()

	if got := mock.CallCount(); got != callers*50 {
		t.Errorf("calls = %d, want %d", got, callers*50)
	}
	slept.Range(func(k, _ interface{}) bool {
		if d := k.(time.Duration); d < time.Millisecond || d >= 11*time.Millisecond {
			t.Errorf("backoff %v outside [1ms, 11ms)", d)
		}
		return true
	})
}
