package types

import "time"

// Operation names a lifecycle operation.
type Operation string

// Lifecycle operations.
const (
	OperationStart       Operation = "start"
	OperationStop        Operation = "stop"
	OperationReconfigure Operation = "reconfigure"
)

// Valid reports whether o is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationStart, OperationStop, OperationReconfigure:
		return true
	}
	return false
}

// Transition describes one completed lifecycle operation. The lifecycle
// manager hands it to observers after the operation has returned its result.
type Transition struct {
	Operation Operation
	Result    OperationResult

	// Requested is the configuration the caller passed, if any. For a
	// failed start it differs from Result.Config, which is nil.
	Requested *ProxyConfig

	// Time is when the operation began.
	Time     time.Time
	Duration time.Duration
}
