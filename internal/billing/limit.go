package billing

// Limit is an explicit union of "unlimited" and "bounded by n". The stored
// representation keeps the legacy -1 sentinel, but it never crosses the
// storage boundary: call sites branch on the union, not on a magic value.
type Limit struct {
	unlimited bool
	n         int
}

// Unlimited returns the unbounded limit.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// Bounded returns a limit of at most n. Negative bounds clamp to zero.
func Bounded(n int) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// LimitFromStored converts the persisted integer form, where -1 means
// unlimited, into the union.
func LimitFromStored(stored int) Limit {
	if stored == -1 {
		return Unlimited()
	}
	return Bounded(stored)
}

// IsUnlimited reports whether the limit is unbounded.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Bound returns the numeric bound. The second return is false for the
// unlimited case, forcing callers to handle it.
func (l Limit) Bound() (int, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Remaining returns how much of the limit is left after `used` consumptions.
// An unlimited limit stays unlimited.
func (l Limit) Remaining(used int) Limit {
	if l.unlimited {
		return l
	}
	rest := l.n - used
	if rest < 0 {
		rest = 0
	}
	return Bounded(rest)
}

// Allows reports whether one more consumption fits under the limit given
// current usage.
func (l Limit) Allows(used int) bool {
	if l.unlimited {
		return true
	}
	return used < l.n
}

// Stored returns the persisted integer form (-1 for unlimited). Only the
// settings storage layer should need this.
func (l Limit) Stored() int {
	if l.unlimited {
		return -1
	}
	return l.n
}
