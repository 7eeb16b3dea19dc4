// Package lock serializes work on the same logical keys, such as two
// reviews of one student's card, while leaving unrelated keys independent.
package lock

import (
	"context"
	"slices"
)

// Locker acquires exclusive ownership of a set of keys. Lock blocks until
// every key is held or ctx is done; the returned function releases them.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

// normalize sorts and de-duplicates keys so that every caller acquires
// overlapping key sets in the same order.
func normalize(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
