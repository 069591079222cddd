package tiered

import (
	"fmt"
	"time"
)

// Quarter derives the "YYYY-Q#" cold-archive partition name for a
// Unix millisecond timestamp, from its UTC calendar date. This is the
// only sanctioned derivation; callers must not invent their own.
func Quarter(timestampMs int64) string {
	t := time.UnixMilli(timestampMs).UTC()
	q := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", t.Year(), q)
}
