// Package recorder records lifecycle transitions as history events.
//
// A Recorder is registered with the lifecycle manager as an observer.
// Each start, stop or reconfigure becomes one history.Event written
// asynchronously; storage failures are logged and never reach the caller
// of the lifecycle operation.
package recorder
