package types

// OperationResult is the outcome of a lifecycle operation. Exactly one of
// Message (on success) or Error (on failure) is set.
type OperationResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Config  *ProxyConfig `json:"config,omitempty"`
}

// Succeeded returns a successful result carrying message.
func Succeeded(message string) OperationResult {
	return OperationResult{Success: true, Message: message}
}

// SucceededWith returns a successful result that echoes cfg.
func SucceededWith(message string, cfg ProxyConfig) OperationResult {
	return OperationResult{Success: true, Message: message, Config: &cfg}
}

// Failed returns a failure result for err.
func Failed(err error) OperationResult {
	return OperationResult{Success: false, Error: err.Error()}
}

// Status reports whether a proxy instance is running. Config is nil when
// stopped.
type Status struct {
	IsRunning bool         `json:"isRunning"`
	Config    *ProxyConfig `json:"config"`
}
