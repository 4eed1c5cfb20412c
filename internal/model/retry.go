package model

// RetryPolicy decides whether a test that did not pass is executed again.
// It only looks at the outcome category, never at the error itself.
type RetryPolicy struct {
	MaxAttemptsByMode map[Mode]int `json:"maxAttemptsByMode"`
}

const (
	DefaultRunAttempts         = 3
	DefaultInteractiveAttempts = 1
)

// DefaultRetryPolicy retries network tests but does not mask
// interactive failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttemptsByMode: map[Mode]int{
			ModeRun:         DefaultRunAttempts,
			ModeInteractive: DefaultInteractiveAttempts,
		},
	}
}

// MaxAttempts returns the maximum amount of attempts for a mode, unknown
// or invalid entries are treated as a single attempt.
func (p RetryPolicy) MaxAttempts(mode Mode) int {
	max := p.MaxAttemptsByMode[mode]
	if max < 1 {
		return 1
	}

	return max
}

func (p RetryPolicy) ShouldRetry(mode Mode, attemptsSoFar int, lastOutcome Outcome) bool {
	if lastOutcome == OutcomePassed {
		return false
	}

	if attemptsSoFar >= p.MaxAttempts(mode) {
		return false
	}

	return lastOutcome == OutcomeFailed || lastOutcome == OutcomeTimedOut
}
