package async

import "errors"

var (
	ErrTimeout       = errors.New("async: operation timed out waiting for future completion")
	ErrRunnerClosed  = errors.New("async: runner is closed")
	ErrTaskPanicked  = errors.New("async: background task panicked")
	ErrDrainDeadline = errors.New("async: background tasks still running at shutdown deadline")
)
