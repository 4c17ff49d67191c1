package backoff

import (
	"testing"
	"time"
)

func TestCalculator(t *testing.T) {
	calc := NewCalculator(nil)
	if _, ok := calc.Strategy().(ExponentialStrategy); !ok {
		t.Fatalf("NewCalculator(nil) should default to ExponentialStrategy, got %T", calc.Strategy())
	}

	if got := calc.Calculate(1, 100*time.Millisecond, 5*time.Second, 0); got != 200*time.Millisecond {
		t.Errorf("Calculate(1) = %v, want 200ms", got)
	}

	calc = NewCalculator(DecorrelatedStrategy{})
	if got := calc.Calculate(0, 100*time.Millisecond, 5*time.Second, 0); got != 100*time.Millisecond {
		t.Errorf("decorrelated Calculate(0) = %v, want 100ms", got)
	}
}

func TestCalculatePackageFunc(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := Calculate(tt.attempt, time.Second, 10*time.Second, 0); got != tt.expected {
			t.Errorf("Calculate(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func BenchmarkCalculator(b *testing.B) {
	calc := NewCalculator(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		calc.Calculate(i%10, 100*time.Millisecond, 5*time.Second, 0.1)
	}
}
