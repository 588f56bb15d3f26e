// internal/ingestion/numbering.go
package ingestion

import (
	"context"
	"fmt"
	"time"

	"dca-platform/internal/common/database"
	"dca-platform/internal/common/errors"
)

// Numbering hands out unique, per-year sequential case numbers of the
// form CASE-<year>-<seq>. The counter lives in Redis so every instance
// draws from the same sequence.
type Numbering struct {
	redis *database.RedisClient
	now   func() time.Time
}

func NewNumbering(redis *database.RedisClient) *Numbering {
	return &Numbering{redis: redis, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (n *Numbering) WithClock(now func() time.Time) *Numbering {
	n.now = now
	return n
}

// Next allocates the next case number for the current year.
func (n *Numbering) Next(ctx context.Context) (string, error) {
	year := n.now().UTC().Year()
	key := fmt.Sprintf("case:number:%d", year)

	seq, err := n.redis.Incr(ctx, key)
	if err != nil {
		return "", errors.NewDatabaseError(err)
	}
	return fmt.Sprintf("CASE-%d-%06d", year, seq), nil
}
