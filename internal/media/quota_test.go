package media

import (
	"context"
	"errors"
	"testing"
)

type fixedCounter int64

func (f fixedCounter) TotalBytes(context.Context) (int64, error) {
	return int64(f), nil
}

type failingCounter struct{}

func (failingCounter) TotalBytes(context.Context) (int64, error) {
	return 0, errors.New("db offline")
}

func TestQuotaCheck(t *testing.T) {
	t.Parallel()

	q := NewQuota(1000, fixedCounter(400), fixedCounter(300))

	if err := q.Check(context.Background(), 300); err != nil {
		t.Errorf("Check(300) error = %v, want nil", err)
	}
	if err := q.Check(context.Background(), 301); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Check(301) error = %v, want ErrQuotaExceeded", err)
	}
}

func TestQuotaUnlimited(t *testing.T) {
	t.Parallel()

	q := NewQuota(0, fixedCounter(1 << 40))
	if err := q.Check(context.Background(), 1<<40); err != nil {
		t.Errorf("Check() with no limit error = %v, want nil", err)
	}
}

func TestQuotaCounterFailure(t *testing.T) {
	t.Parallel()

	q := NewQuota(1000, failingCounter{})
	if err := q.Check(context.Background(), 1); err == nil {
		t.Error("Check() error = nil, want counter failure")
	}
}
