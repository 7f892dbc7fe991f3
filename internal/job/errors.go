package job

import "errors"

var (
	// ErrDuplicateInstance is the fatal-at-construction per-host singleton
	// guard of spec §4.4 / §7.
	ErrDuplicateInstance = errors.New("job: another instance of this job is already running on this unit")

	// ErrInvalidTransition guards the lifecycle DAG of spec §3.
	ErrInvalidTransition = errors.New("job: invalid lifecycle transition")
)
