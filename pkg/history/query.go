package history

import (
	"errors"
	"fmt"
)

// MaxQueryLimit is the largest page a query may request.
const MaxQueryLimit = 1000

// Validate checks the query's filters and pagination.
func (q *Query) Validate() error {
	if q.Limit < 0 || q.Limit > MaxQueryLimit {
		return NewQueryError(q, fmt.Errorf("limit %d must be between 0 and %d", q.Limit, MaxQueryLimit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset %d must be non-negative", q.Offset))
	}
	if q.Operation != "" && !q.Operation.Valid() {
		return NewQueryError(q, fmt.Errorf("unknown operation %q", q.Operation))
	}
	switch q.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return NewQueryError(q, fmt.Errorf("sort order must be %q or %q", SortAsc, SortDesc))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, errors.New("start time is after end time"))
	}
	return nil
}

// EffectiveLimit returns Limit, or DefaultQueryLimit when it is zero.
func (q *Query) EffectiveLimit() int {
	if q.Limit == 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Ascending reports whether results are ordered oldest first.
func (q *Query) Ascending() bool {
	return q.SortOrder == SortAsc
}

// Matches reports whether e satisfies the query's filters. Pagination and
// ordering are not considered.
func (q *Query) Matches(e *Event) bool {
	if q.StartTime != nil && e.Time.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Time.After(*q.EndTime) {
		return false
	}
	if q.Operation != "" && e.Operation != q.Operation {
		return false
	}
	if q.Success != nil && e.Success != *q.Success {
		return false
	}
	return true
}
