package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// engineScript replays one error per call; nil entries succeed and calls
// past the end repeat the last entry.
type engineScript struct {
	errs  []error
	calls int
}

func (s *engineScript) call() error {
	i := min(s.calls, len(s.errs)-1)
	s.calls++
	return s.errs[i]
}

func TestRetry(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "engine restarting")
	badFrame := status.Error(codes.InvalidArgument, "not a png")
	decode := errors.New("decode failed")
	fast := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{"first call succeeds", []error{nil}, nil, 1},
		{"recovers after transient failures", []error{unavailable, unavailable, nil}, nil, 3},
		{"gives up after max retries", []error{unavailable}, unavailable, 3},
		{"permanent grpc error not retried", []error{badFrame}, badFrame, 1},
		{"plain error not retried", []error{decode}, decode, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &engineScript{errs: tt.errs}
			err := Retry(context.Background(), fast, s.call)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("Retry() = %v, want %v", err, tt.wantErr)
			}
			if s.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", s.calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryCustomPredicate(t *testing.T) {
	flaky := errors.New("rate limited")
	cfg := RetryConfig{
		MaxRetries:  1,
		BaseDelay:   time.Millisecond,
		IsRetryable: func(err error) bool { return errors.Is(err, flaky) },
	}
	s := &engineScript{errs: []error{flaky, nil}}
	if err := Retry(context.Background(), cfg, s.call); err != nil || s.calls != 2 {
		t.Errorf("Retry() = %v after %d calls, want success after 2", err, s.calls)
	}
}

func TestRetryStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	err := Retry(ctx, cfg, func() error { return status.Error(codes.Unavailable, "down") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Error("Retry kept waiting after cancellation")
	}
}

func TestIsRetryableGRPC(t *testing.T) {
	retryable := map[codes.Code]bool{
		codes.Unavailable:       true,
		codes.DeadlineExceeded:  true,
		codes.ResourceExhausted: true,
		codes.Aborted:           true,
		codes.Internal:          false,
		codes.InvalidArgument:   false,
		codes.NotFound:          false,
		codes.PermissionDenied:  false,
	}
	for code, want := range retryable {
		if got := IsRetryableGRPC(status.Error(code, "x")); got != want {
			t.Errorf("IsRetryableGRPC(%v) = %v, want %v", code, got, want)
		}
	}
	if IsRetryableGRPC(nil) || IsRetryableGRPC(errors.New("plain")) {
		t.Error("nil and non-gRPC errors are not retryable")
	}
}

func TestOCRRetryConfigFitsInsideTick(t *testing.T) {
	cfg := OCRRetryConfig()
	cfg.JitterFactor = 0
	var total time.Duration
	for i := 0; i < cfg.MaxRetries; i++ {
		total += backoffDelay(cfg, i)
	}
	if total >= time.Second {
		t.Errorf("worst case OCR backoff = %v, want under one second", total)
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for attempt, w := range want {
		if got := backoffDelay(cfg, attempt); got != w {
			t.Errorf("attempt %d delay = %v, want %v", attempt, got, w)
		}
	}
}

func TestRetryZeroConfigUsesEngineBudget(t *testing.T) {
	s := &engineScript{errs: []error{status.Error(codes.Unavailable, "down")}}
	_ = Retry(context.Background(), RetryConfig{}, s.call)
	if s.calls != EngineRetries+1 {
		t.Errorf("calls = %d, want %d", s.calls, EngineRetries+1)
	}
}

func TestRetrySkipsBackoffPastDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}
	unavailable := status.Error(codes.Unavailable, "engine restarting")
	s := &engineScript{errs: []error{unavailable, nil}}

	start := time.Now()
	err := Retry(ctx, cfg, s.call)
	if !errors.Is(err, unavailable) {
		t.Errorf("Retry() = %v, want the engine error", err)
	}
	if s.calls != 1 {
		t.Errorf("calls = %d, want 1", s.calls)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Error("Retry waited although the backoff could not fit before the deadline")
	}
}
