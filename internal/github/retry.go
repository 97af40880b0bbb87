package github

// retryPolicy re-runs an attempt a bounded number of extra times while the
// returned error matches its predicate. Every write path shares the same
// policy: one extra attempt, conflicts only. A second conflict is surfaced,
// not swallowed.
type retryPolicy struct {
	extraAttempts int
	retryable     func(error) bool
}

func (p retryPolicy) do(attempt func() error) error {
	err := attempt()
	for extra := 0; extra < p.extraAttempts && err != nil && p.retryable(err); extra++ {
		err = attempt()
	}
	return err
}
