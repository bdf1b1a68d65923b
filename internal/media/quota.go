package media

import (
	"context"
	"errors"
	"fmt"
)

// ErrQuotaExceeded is returned when an upload would push total storage past
// the configured limit.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// ByteCounter reports the total stored bytes a repository accounts for.
type ByteCounter interface {
	TotalBytes(ctx context.Context) (int64, error)
}

// Quota enforces the server-wide storage limit across every repository that
// tracks file sizes.
type Quota struct {
	limit    int64
	counters []ByteCounter
}

// NewQuota builds a quota over the given counters. A limit of zero or less
// disables enforcement.
func NewQuota(limit int64, counters ...ByteCounter) *Quota {
	return &Quota{limit: limit, counters: counters}
}

// Check returns ErrQuotaExceeded when storing incoming more bytes would
// exceed the limit.
func (q *Quota) Check(ctx context.Context, incoming int64) error {
	if q.limit <= 0 {
		return nil
	}

	var used int64
	for _, c := range q.counters {
		n, err := c.TotalBytes(ctx)
		if err != nil {
			return fmt.Errorf("count stored bytes: %w", err)
		}
		used += n
	}

	if used+incoming > q.limit {
		return ErrQuotaExceeded
	}
	return nil
}
