package cli

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitUsage is returned for bad configuration files, environment
	// overrides and flags.
	ExitUsage = 2
)

// ConfigError reports configuration the command could not accept. Source
// is the config file path or the flag that carried the bad value.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration (%s): %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as a ConfigError for source.
func NewConfigError(source string, err error) *ConfigError {
	return &ConfigError{Source: source, Err: err}
}

// ConfigErrorf builds a ConfigError from a formatted message.
func ConfigErrorf(source, format string, args ...any) *ConfigError {
	return &ConfigError{Source: source, Err: fmt.Errorf(format, args...)}
}

// CommandError is a command that could not complete, such as a control
// request that never reached the relay process.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err as a CommandError for command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// OperationError is a lifecycle operation that the relay process carried
// out and reported as failed, such as a start whose port was taken.
type OperationError struct {
	Operation string
	Message   string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// NewOperationError creates a new OperationError.
func NewOperationError(operation, message string) *OperationError {
	return &OperationError{Operation: operation, Message: message}
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitUsage
	}
	return ExitFailure
}
