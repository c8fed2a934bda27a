package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHoldingKey(t *testing.T) {
	key := HoldingKey("acct-1", "sec-1", "")
	assert.Equal(t, key, HoldingKey("acct-1", "sec-1", ""), "key must be deterministic")
	assert.Len(t, key, 40)

	assert.NotEqual(t, key, HoldingKey("acct-1", "sec-2", ""))
	assert.NotEqual(t, key, HoldingKey("acct-2", "sec-1", ""))
	assert.NotEqual(t, key, HoldingKey("acct-1", "sec-1", "lot-1"))
	assert.NotEqual(t, HoldingKey("acct-1", "sec-1", "lot-1"), HoldingKey("acct-1", "sec-1", "lot-2"))

	// the separator prevents concatenation collisions
	assert.NotEqual(t, HoldingKey("ab", "c", ""), HoldingKey("a", "bc", ""))
}

func TestDayUTC(t *testing.T) {
	assert.Equal(t,
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		DayUTC(time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC)))

	// normalization happens on the UTC calendar, not the local one
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t,
		time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
		DayUTC(time.Date(2024, 3, 15, 22, 30, 0, 0, est)))
}
