package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// SequentialRunIDs returns a run id source for Applier.SetRunIDGenerator that
// yields prefix-1, prefix-2, and so on.
func SequentialRunIDs(prefix string) func() string {
	var n atomic.Uint64
	return func() string {
		return prefix + "-" + strconv.FormatUint(n.Add(1), 10)
	}
}
