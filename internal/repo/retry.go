package repo

import "taskboard/internal/utils"

// createAttempts bounds the tail-insert retry loop. Two concurrent creates
// for one user can read the same MAX(position) and collide on the
// distinct-position index; a retry re-reads the new maximum, so one extra
// round settles any two-way race and a third absorbs a pile-up.
const createAttempts = 3

// retryPositionClash runs fn until it returns anything other than a unique
// violation, up to createAttempts times. The last error is returned as is,
// so an index that genuinely cannot be satisfied still surfaces.
func retryPositionClash[T any](fn func() (T, error)) (T, error) {
	var out T
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		out, err = fn()
		if !utils.IsPGUniqueViolation(err) {
			break
		}
	}
	return out, err
}
