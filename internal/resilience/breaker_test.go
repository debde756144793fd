package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("translate", Config{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 2})
	if b.State() != Closed {
		t.Fatalf("initial state = %v, want Closed", b.State())
	}

	for i := 0; i < 3; i++ {
		b.Failure()
	}

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
	if err := b.Allow(); err != ErrOpen {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	b := New("ocr", Config{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 2})
	b.Failure()

	time.Sleep(5 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}

	b.Success()
	b.Success()
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	b := New("ocr", Config{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 3})
	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()

	b.Failure()

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b := New("translate", Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	b.Failure()
	b.Reset()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerExecute(t *testing.T) {
	b := New("translate", Config{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute success = %v, want nil", err)
	}

	testErr := errors.New("endpoint refused")
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return testErr }); err != testErr {
			t.Errorf("Execute failure = %v, want %v", err, testErr)
		}
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != ErrOpen {
		t.Errorf("Execute while open = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn called while breaker open")
	}
}

func TestBreakerExecuteWithResult(t *testing.T) {
	b := New("translate", DefaultConfig())

	result, err := ExecuteWithResult(b, func() (string, error) {
		return "bonjour", nil
	})
	if err != nil || result != "bonjour" {
		t.Errorf("ExecuteWithResult = (%q, %v), want (bonjour, nil)", result, err)
	}
}

func TestBreakerHook(t *testing.T) {
	var transitions []State
	b := New("ocr", Config{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 1})
	b.WithHook(func(_, to State) {
		transitions = append(transitions, to)
	})

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()
	b.Success()

	want := []State{Open, HalfOpen, Closed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestBreakerConcurrentSafety(t *testing.T) {
	b := New("translate", Config{Threshold: 100, ResetTimeout: time.Second, HalfOpenSuccesses: 10})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Allow()
			if i%2 == 0 {
				b.Success()
			} else {
				b.Failure()
			}
		}()
	}
	wg.Wait()
	_ = b.State()
}

func TestSuccessResetsFailures(t *testing.T) {
	b := New("translate", Config{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestConfigPresets(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Config
	}{
		{"zero", Config{}.withDefaults(), Config{DefaultThreshold, DefaultResetTimeout, DefaultHalfOpenSuccesses}},
		{"translate", TranslateConfig(), Config{TranslateThreshold, TranslateResetTimeout, TranslateHalfOpenSuccesses}},
		{"ocr", OCRConfig(), Config{OCRThreshold, OCRResetTimeout, OCRHalfOpenSuccesses}},
	}
	for _, tt := range tests {
		if tt.cfg != tt.want {
			t.Errorf("%s: cfg = %+v, want %+v", tt.name, tt.cfg, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
