package safety

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(true, 3, nil)
	boom := errors.New("boom")

	assert.NoError(t, b.Record(boom))
	assert.NoError(t, b.Record(boom))
	err := b.Record(boom)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// Stays open on further failures.
	assert.ErrorIs(t, b.Record(boom), ErrCircuitOpen)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(true, 2, nil)
	boom := errors.New("boom")

	assert.NoError(t, b.Record(boom))
	assert.NoError(t, b.Record(nil))
	assert.NoError(t, b.Record(boom))
}

func TestBreakerDisabled(t *testing.T) {
	b := NewBreaker(false, 1, nil)
	assert.NoError(t, b.Record(errors.New("boom")))
	assert.NoError(t, b.Record(errors.New("boom")))
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(true, 1, nil)
	require.ErrorIs(t, b.Record(errors.New("boom")), ErrCircuitOpen)
	b.Reset()
	assert.NoError(t, b.Record(nil))
}

type recordingAlerter struct {
	events []string
}

func (r *recordingAlerter) Important(name string, fields map[string]string) {
	r.events = append(r.events, name)
}

func TestBreakerAlertsOnceOnTrip(t *testing.T) {
	b := NewBreaker(true, 1, nil)
	rec := &recordingAlerter{}
	b.SetAlerter(rec)
	boom := errors.New("boom")

	require.Error(t, b.Record(boom))
	require.Error(t, b.Record(boom))
	assert.Equal(t, []string{"circuit_open"}, rec.events)
}
