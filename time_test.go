package auth_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWithinThresholdPeriod(t *testing.T) {
	tests := []struct {
		name          string
		inputTime     time.Time
		thresholdExpr string
		expected      bool
		expectErr     bool
	}{
		{
			name:          "attempt ten minutes ago is inside the default cooldown",
			inputTime:     time.Now().Add(-10 * time.Minute),
			thresholdExpr: "24h",
			expected:      true,
		},
		{
			name:          "attempt two days ago is outside the default cooldown",
			inputTime:     time.Now().Add(-48 * time.Hour),
			thresholdExpr: "24h",
			expected:      false,
		},
		{
			name:          "boundary counts as outside",
			inputTime:     time.Now().Add(-time.Hour),
			thresholdExpr: "1h",
			expected:      false,
		},
		{
			name:          "compound duration expression",
			inputTime:     time.Now().Add(-80 * time.Minute),
			thresholdExpr: "1h30m",
			expected:      true,
		},
		{
			name:          "future timestamp is always within",
			inputTime:     time.Now().Add(5 * time.Minute),
			thresholdExpr: "15m",
			expected:      true,
		},
		{
			name:          "unparseable expression",
			inputTime:     time.Now(),
			thresholdExpr: "one day",
			expectErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := auth.IsWithinThresholdPeriod(tt.inputTime, tt.thresholdExpr)

			if tt.expectErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsOutsideThresholdPeriod(t *testing.T) {
	stale := time.Now().Add(-36 * time.Hour)

	outside, err := auth.IsOutsideThresholdPeriod(stale, auth.CoolDownPeriod)
	require.NoError(t, err)
	assert.True(t, outside, "a day-old attempt counter should have expired")

	recent := time.Now().Add(-time.Minute)
	outside, err = auth.IsOutsideThresholdPeriod(recent, auth.CoolDownPeriod)
	require.NoError(t, err)
	assert.False(t, outside)

	_, err = auth.IsOutsideThresholdPeriod(time.Now(), "soon")
	assert.Error(t, err)
}

func TestThresholdPredicatesAreComplementary(t *testing.T) {
	samples := []time.Time{
		time.Now(),
		time.Now().Add(-time.Minute),
		time.Now().Add(-25 * time.Hour),
		time.Now().Add(time.Hour),
	}

	for _, sample := range samples {
		within, err := auth.IsWithinThresholdPeriod(sample, "24h")
		require.NoError(t, err)

		outside, err := auth.IsOutsideThresholdPeriod(sample, "24h")
		require.NoError(t, err)

		assert.NotEqual(t, within, outside)
	}
}
