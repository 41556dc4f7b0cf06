package history

import (
	"context"
	"time"

	"relaydesk/relay/pkg/proxy/types"
)

// Event is a recorded lifecycle transition.
type Event struct {
	ID        string             `json:"id"`
	Operation types.Operation    `json:"operation"`
	Success   bool               `json:"success"`
	Message   string             `json:"message,omitempty"`
	Error     string             `json:"error,omitempty"`
	Config    *types.ProxyConfig `json:"config,omitempty"`
	Time      time.Time          `json:"time"`
	Duration  time.Duration      `json:"duration"`
}

// Sort orders for Query.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// DefaultQueryLimit caps Query results when Limit is zero.
const DefaultQueryLimit = 100

// Query defines filter parameters for querying events. The zero value
// matches every event, newest first.
type Query struct {
	// Time range, both inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Operation types.Operation `json:"operation,omitempty"`
	Success   *bool           `json:"success,omitempty"`

	// Pagination. Limit 0 means DefaultQueryLimit for Query; Count and
	// Delete ignore pagination.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder is SortAsc or SortDesc (by time). Default: SortDesc.
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage defines the interface for event storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists an event.
	Store(ctx context.Context, event *Event) error

	// Query retrieves events matching the filters. Returns an empty slice
	// if nothing matches.
	Query(ctx context.Context, query *Query) ([]*Event, error)

	// Count returns the number of events matching the filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes events matching the filters and returns how many were
	// removed. Used for retention.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Ping reports whether the backend is usable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// NewEvent builds the event recorded for t. The configuration stored is the
// one the result reports, falling back to the requested one.
func NewEvent(id string, t types.Transition) *Event {
	cfg := t.Result.Config
	if cfg == nil {
		cfg = t.Requested
	}
	return &Event{
		ID:        id,
		Operation: t.Operation,
		Success:   t.Result.Success,
		Message:   t.Result.Message,
		Error:     t.Result.Error,
		Config:    cfg,
		Time:      t.Time,
		Duration:  t.Duration,
	}
}
