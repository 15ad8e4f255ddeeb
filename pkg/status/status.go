package status

import "github.com/grovehq/grove/pkg/types"

// distress states are sticky against federation-triggered transitions:
// once a garden is in one of these, UNREACHABLE and ERROR reports from
// downstream may not overwrite it. Explicit update calls bypass this.
var distress = map[types.GardenStatus]struct{}{
	types.StatusUnreachable: {},
	types.StatusStopped:     {},
	types.StatusBlocked:     {},
	types.StatusError:       {},
}

// Transition applies the guarded status transition rules for
// federation-event-triggered status changes. It returns the status the
// garden should hold and whether the write (including the heartbeat
// refresh) should be applied at all.
//
// UNREACHABLE and ERROR are applied only when the current status is not
// already a distress state. NOT_CONFIGURED is applied only when the
// garden is already NOT_CONFIGURED, so through this path it acts as a
// heartbeat refresh and can never be reached from another state; that
// is the long-standing observed behavior and is kept as-is. Any other
// requested status passes through unguarded.
func Transition(current, requested types.GardenStatus) (types.GardenStatus, bool) {
	switch requested {
	case types.StatusUnreachable, types.StatusError:
		if _, ok := distress[current]; ok {
			return current, false
		}
		return requested, true
	case types.StatusNotConfigured:
		if current == types.StatusNotConfigured {
			return current, true
		}
		return current, false
	default:
		return requested, true
	}
}
