package auth

import "time"

// IsWithinThresholdPeriod checks if the given time falls inside the window
// that started thresholdExpr ago. The expression uses time.ParseDuration
// syntax, e.g. "24h" or "2h30m".
func IsWithinThresholdPeriod(t time.Time, thresholdExpr string) (bool, error) {
	threshold, err := time.ParseDuration(thresholdExpr)
	if err != nil {
		return false, err
	}

	cutoff := time.Now().Add(-threshold)

	return t.After(cutoff), nil
}

// IsOutsideThresholdPeriod is the complement of IsWithinThresholdPeriod.
func IsOutsideThresholdPeriod(t time.Time, thresholdExpr string) (bool, error) {
	within, err := IsWithinThresholdPeriod(t, thresholdExpr)
	if err != nil {
		return false, err
	}

	return !within, nil
}
