package poll

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil_ImmediateSuccess(t *testing.T) {
	calls := 0
	fetch := func() (string, error) {
		calls++
		return "converged", nil
	}

	start := time.Now()
	got, err := Until(fetch, func(text string) bool { return text == "converged" }, 5, 50*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, "converged", got)
	assert.Equal(t, 1, calls, "should not fetch again after the predicate holds")
	assert.Less(t, time.Since(start), 50*time.Millisecond, "early exit must not wait out the budget")
}

func TestUntil_EventualSuccess(t *testing.T) {
	calls := 0
	fetch := func() (string, error) {
		calls++
		if calls < 3 {
			return "pending", nil
		}
		return "converged", nil
	}

	got, err := Until(fetch, func(text string) bool { return text == "converged" }, 5, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, "converged", got)
	assert.Equal(t, 3, calls)
}

func TestUntil_BudgetExhausted(t *testing.T) {
	calls := 0
	fetch := func() (string, error) {
		calls++
		return "still pending", nil
	}

	got, err := Until(fetch, func(string) bool { return false }, 4, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 4, calls, "every attempt in the budget must be used")
	assert.Equal(t, "still pending", got, "last snapshot is returned for diagnostics")

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 4, timeout.Attempts)
	assert.Equal(t, "still pending", timeout.LastSnapshot)
}

func TestUntil_FetchErrorConsumesAttempt(t *testing.T) {
	calls := 0
	fetch := func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "converged", nil
	}

	got, err := Until(fetch, func(text string) bool { return text == "converged" }, 5, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, "converged", got)
	assert.Equal(t, 3, calls)
}

func TestUntil_AllFetchesFail(t *testing.T) {
	fetch := func() (string, error) {
		return "", errors.New("connection refused")
	}

	got, err := Until(fetch, func(string) bool { return true }, 3, time.Millisecond)
	require.Error(t, err)
	assert.Empty(t, got)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Empty(t, timeout.LastSnapshot, "no snapshot was ever observed")
}

func TestUntil_BoundedWait(t *testing.T) {
	const attempts = 5
	const interval = 20 * time.Millisecond

	start := time.Now()
	_, err := Until(func() (string, error) { return "nope", nil }, func(string) bool { return false }, attempts, interval)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, time.Duration(attempts)*interval, "must use the whole budget before giving up")
	assert.Less(t, elapsed, time.Duration(attempts)*interval+500*time.Millisecond, "must not wait indefinitely")
}
