package httpaas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCacheRemembersExactValue(t *testing.T) {
	c := newDedupCache(true, time.Minute, 100)
	c.Remember("sm1", "Temperature", 21.5)

	assert.True(t, c.Seen("sm1", "Temperature", 21.5))
	assert.False(t, c.Seen("sm1", "Temperature", 22.0))
}

func TestDedupCacheDisabledNeverMatches(t *testing.T) {
	c := newDedupCache(false, time.Minute, 100)
	c.Remember("sm1", "Temperature", 21.5)

	assert.False(t, c.Seen("sm1", "Temperature", 21.5))
}

func TestDedupCacheExpiresAfterTTL(t *testing.T) {
	c := newDedupCache(true, 10*time.Millisecond, 100)
	c.Remember("sm1", "Temperature", 21.5)

	assert.True(t, c.Seen("sm1", "Temperature", 21.5))
	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.Seen("sm1", "Temperature", 21.5))
}

func TestDedupCacheDistinguishesKeys(t *testing.T) {
	c := newDedupCache(true, time.Minute, 100)
	c.Remember("sm1", "Temperature", 21.5)

	assert.False(t, c.Seen("sm2", "Temperature", 21.5))
	assert.False(t, c.Seen("sm1", "Pressure", 21.5))
}
