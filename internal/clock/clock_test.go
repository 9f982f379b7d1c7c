package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahnmcp/bahnmcp/internal/clock"
)

func TestNow_InBerlin(t *testing.T) {
	now := clock.Now()
	assert.Equal(t, "Europe/Berlin", now.Location().String())
	assert.WithinDuration(t, time.Now(), now, 5*time.Second)
}

func TestSystem_Now(t *testing.T) {
	var c clock.Clock = clock.System{}
	assert.Equal(t, clock.Berlin, c.Now().Location())
}

func TestParse_Naive(t *testing.T) {
	got, err := clock.Parse("2026-02-24T14:30:00")
	require.NoError(t, err)

	assert.Equal(t, clock.Berlin, got.Location())
	assert.True(t, time.Date(2026, 2, 24, 14, 30, 0, 0, clock.Berlin).Equal(got))

	_, offset := got.Zone()
	assert.Equal(t, 3600, offset, "February is CET")
}

func TestParse_NaiveSummer(t *testing.T) {
	got, err := clock.Parse("2026-07-01T08:15:00")
	require.NoError(t, err)

	_, offset := got.Zone()
	assert.Equal(t, 7200, offset, "July is CEST")
}

func TestParse_WithOffset(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "winter offset",
			input: "2026-02-24T14:30:00+01:00",
			want:  time.Date(2026, 2, 24, 14, 30, 0, 0, clock.Berlin),
		},
		{
			name:  "summer offset",
			input: "2026-07-01T14:30:00+02:00",
			want:  time.Date(2026, 7, 1, 14, 30, 0, 0, clock.Berlin),
		},
		{
			name:  "foreign offset is converted",
			input: "2026-02-24T14:30:00+00:00",
			want:  time.Date(2026, 2, 24, 15, 30, 0, 0, clock.Berlin),
		},
		{
			name:  "negative offset",
			input: "2026-02-24T08:30:00-05:00",
			want:  time.Date(2026, 2, 24, 14, 30, 0, 0, clock.Berlin),
		},
		{
			name:  "zulu",
			input: "2026-02-24T13:30:00Z",
			want:  time.Date(2026, 2, 24, 14, 30, 0, 0, clock.Berlin),
		},
		{
			name:  "compact offset",
			input: "2026-02-24T14:30:00+0100",
			want:  time.Date(2026, 2, 24, 14, 30, 0, 0, clock.Berlin),
		},
		{
			name:  "minute precision with offset",
			input: "2026-02-24T14:30+01:00",
			want:  time.Date(2026, 2, 24, 14, 30, 0, 0, clock.Berlin),
		},
		{
			name:  "minute precision with compact negative offset",
			input: "2026-02-24T08:30-0500",
			want:  time.Date(2026, 2, 24, 14, 30, 0, 0, clock.Berlin),
		},
		{
			name:  "space separator with offset",
			input: "2026-02-24 14:30:00.250+01:00",
			want:  time.Date(2026, 2, 24, 14, 30, 0, 250000000, clock.Berlin),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := clock.Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, clock.Berlin, got.Location())
		})
	}
}

func TestParse_TrimsWhitespace(t *testing.T) {
	got, err := clock.Parse("  2026-02-24T14:30:00 ")
	require.NoError(t, err)
	assert.Equal(t, 14, got.Hour())
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "not a date", "2026-13-45T99:00:00", "2026-02-24T14:30:00+1"} {
		t.Run(input, func(t *testing.T) {
			_, err := clock.Parse(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, clock.ErrInvalidTimestamp)
		})
	}
}

func TestFormatDateAndTime(t *testing.T) {
	ts := time.Date(2026, 2, 4, 7, 5, 9, 0, clock.Berlin)

	assert.Equal(t, "2026-02-04", clock.FormatDate(ts))
	assert.Equal(t, "07:05:09", clock.FormatTime(ts))
}

func TestFormatTime_UsesOwnLocation(t *testing.T) {
	ts := time.Date(2026, 2, 24, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-02-24", clock.FormatDate(ts))
	assert.Equal(t, "23:30:00", clock.FormatTime(ts))
}

func TestToUTC(t *testing.T) {
	ts := time.Date(2026, 2, 24, 14, 30, 0, 0, clock.Berlin)
	utc := clock.ToUTC(ts)

	assert.Equal(t, time.UTC, utc.Location())
	assert.Equal(t, 13, utc.Hour())
}

func TestFormatUTCMillis(t *testing.T) {
	ts := time.Date(2026, 7, 1, 14, 30, 5, 123456789, clock.Berlin)

	assert.Equal(t, "2026-07-01T12:30:05.000Z", clock.FormatUTCMillis(ts))
}
