package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimer_StartAndExpired(t *testing.T) {
	now := time.Unix(0, 0)
	var tm Timer

	t.Run("not started never expires", func(t *testing.T) {
		assert.False(t, tm.Expired(now))
		assert.False(t, tm.IsStarted())
	})

	t.Run("started but not yet due", func(t *testing.T) {
		tm.Start(now, 100*time.Millisecond)
		assert.True(t, tm.IsStarted())
		assert.False(t, tm.Expired(now.Add(50*time.Millisecond)))
	})

	t.Run("expires once the deadline passes", func(t *testing.T) {
		assert.True(t, tm.Expired(now.Add(100*time.Millisecond)))
		assert.True(t, tm.Expired(now.Add(200*time.Millisecond)))
	})
}

func TestTimer_Stop(t *testing.T) {
	now := time.Unix(0, 0)
	var tm Timer
	tm.Start(now, 10*time.Millisecond)
	tm.Stop()

	assert.False(t, tm.IsStarted())
	assert.False(t, tm.Expired(now.Add(time.Second)))
	assert.Equal(t, time.Duration(0), tm.Remaining(now))
}

func TestTimer_Repeat_IsRelativeToPreviousDeadlineNotNow(t *testing.T) {
	now := time.Unix(0, 0)
	var tm Timer
	tm.Start(now, 100*time.Millisecond)

	// Poll late, well past the deadline.
	late := now.Add(150 * time.Millisecond)
	assert.True(t, tm.Expired(late))

	tm.Repeat(100 * time.Millisecond)
	// New deadline is 200ms from the original start, not 250ms from late.
	assert.Equal(t, 50*time.Millisecond, tm.Remaining(late))
}

func TestTimer_Remaining(t *testing.T) {
	now := time.Unix(0, 0)
	var tm Timer
	tm.Start(now, 100*time.Millisecond)

	assert.Equal(t, 100*time.Millisecond, tm.Remaining(now))
	assert.Equal(t, 40*time.Millisecond, tm.Remaining(now.Add(60*time.Millisecond)))
	assert.Negative(t, tm.Remaining(now.Add(200*time.Millisecond)))
}
