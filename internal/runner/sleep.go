// SPDX-License-Identifier: MIT

package runner

import (
	"context"
	"time"
)

// sleepCtx sleeps for waitMS milliseconds (a monotonic time.Timer under the
// hood, per SPEC_FULL.md §9's resolution of the wall-clock-vs-monotonic
// open question) or returns early if ctx is cancelled — the only way an
// external reset signal interrupts a runner's timer sleep (spec.md §5).
func sleepCtx(ctx context.Context, waitMS int64) error {
	timer := time.NewTimer(time.Duration(waitMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
