package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func TestCalculateBackoffDoubles(t *testing.T) {
	policy := NewRetryPolicy(3, 2*time.Second)

	// Jitter is ±25%, so check each attempt lands in its band
	bands := []struct {
		attempt  int
		min, max time.Duration
	}{
		{1, 1500 * time.Millisecond, 2500 * time.Millisecond},
		{2, 3 * time.Second, 5 * time.Second},
		{3, 6 * time.Second, 10 * time.Second},
	}

	for _, band := range bands {
		for i := 0; i < 20; i++ {
			got := policy.CalculateBackoff(band.attempt)
			if got < band.min || got > band.max {
				t.Fatalf("attempt %d backoff %v outside [%v, %v]", band.attempt, got, band.min, band.max)
			}
		}
	}
}

func TestCalculateBackoffCapped(t *testing.T) {
	policy := NewRetryPolicy(10, 2*time.Second)

	got := policy.CalculateBackoff(10)
	ceiling := time.Duration(float64(policy.MaxBackoff) * 1.25)
	if got > ceiling {
		t.Errorf("Backoff %v exceeds jittered cap %v", got, ceiling)
	}
}

func TestExecuteWithRetryStopsOnSuccess(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	err := policy.ExecuteWithRetry(context.Background(), arbor.NewLogger(), func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestExecuteWithRetryExhaustsAttempts(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	wantErr := errors.New("portal down")
	err := policy.ExecuteWithRetry(context.Background(), arbor.NewLogger(), func(attempt int) error {
		calls++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected final error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestExecuteWithRetryHonorsContext(t *testing.T) {
	policy := NewRetryPolicy(3, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := policy.ExecuteWithRetry(ctx, arbor.NewLogger(), func(attempt int) error {
		calls++
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single call before cancellation, got %d", calls)
	}
}

func TestScrapeErrorWrapsCause(t *testing.T) {
	cause := &TransportError{StatusCode: 503}
	err := &ScrapeError{Term: "Smith", Attempts: 3, Cause: cause}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Error("ScrapeError must unwrap to its cause")
	}
}

func TestIsCredentialError(t *testing.T) {
	if !IsCredentialError(ErrTokenRejected) {
		t.Error("ErrTokenRejected is a credential error")
	}
	if !IsCredentialError(ErrNoToken) {
		t.Error("ErrNoToken is a credential error")
	}
	if IsCredentialError(&TransportError{StatusCode: 500}) {
		t.Error("Server errors are not credential errors")
	}
}
