package store

import (
	"strconv"
	"time"
)

// History queries use an opaque numeric-offset cursor, adapted from the
// teacher's Condition.OffsetLimit; a real offset keeps pagination stable
// across a single append-only table without requiring a keyset column.
func decodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func encodeCursor(offset int) string {
	return strconv.Itoa(offset)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

// windowBounds normalizes the (from, to) history-query bounds: a nil from
// defaults to the zero instant, a nil to defaults to now.
func windowBounds(from, to *time.Time) (time.Time, time.Time) {
	var f, t time.Time
	if from != nil {
		f = *from
	}
	if to != nil {
		t = *to
	} else {
		t = time.Now().UTC()
	}
	return f, t
}
