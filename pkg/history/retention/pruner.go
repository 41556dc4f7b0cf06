package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"relaydesk/relay/pkg/history"
)

// Metrics receives pruning counters.
type Metrics interface {
	RecordHistoryPruned(n int64)
}

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain events.
	// 0 means keep events forever.
	RetentionDays int

	// MaxRecords is the maximum number of events to keep.
	// 0 means unlimited.
	MaxRecords int64

	// PruneSchedule is a cron expression for scheduled pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		MaxRecords:    10000,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner enforces retention limits on the lifecycle history.
type Pruner struct {
	storage history.Storage
	config  *Config
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewPruner creates a pruner. metrics may be nil.
func NewPruner(storage history.Storage, config *Config, metrics Metrics) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		storage: storage,
		config:  config,
		metrics: metrics,
		logger:  slog.Default().With("component", "history.retention"),
		now:     time.Now,
	}
}

// Config returns the pruner's configuration.
func (p *Pruner) Config() *Config {
	return p.config
}

// Prune deletes events older than the retention period, then the oldest
// events beyond MaxRecords. It returns the number of events deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		total += deleted
		if err != nil {
			p.record(total)
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		if deleted > 0 {
			p.logger.Info("pruned events by age",
				"deleted_count", deleted,
				"retention_days", p.config.RetentionDays,
			)
		}
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		total += deleted
		if err != nil {
			p.record(total)
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		if deleted > 0 {
			p.logger.Info("pruned events by count",
				"deleted_count", deleted,
				"max_records", p.config.MaxRecords,
			)
		}
	}

	p.record(total)
	if total == 0 {
		p.logger.Debug("no events pruned",
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)

	p.logger.Debug("pruning by age", "cutoff_time", cutoff)

	deleted, err := p.storage.Delete(ctx, &history.Query{EndTime: &cutoff})
	if err != nil {
		return 0, history.NewRetentionError(p.config.RetentionDays, err)
	}
	return deleted, nil
}

// pruneByCount removes the oldest events in pages until the total is back
// under MaxRecords. Events sharing the cutoff timestamp are removed together.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	var total int64
	for {
		count, err := p.storage.Count(ctx, &history.Query{})
		if err != nil {
			return total, fmt.Errorf("failed to count events: %w", err)
		}
		excess := count - p.config.MaxRecords
		if excess <= 0 {
			return total, nil
		}

		limit := int(min(excess, int64(history.MaxQueryLimit)))
		oldest, err := p.storage.Query(ctx, &history.Query{
			SortOrder: history.SortAsc,
			Limit:     limit,
		})
		if err != nil {
			return total, fmt.Errorf("failed to query events: %w", err)
		}
		if len(oldest) == 0 {
			return total, nil
		}

		cutoff := oldest[len(oldest)-1].Time
		p.logger.Debug("pruning oldest events",
			"current_count", count,
			"to_delete", limit,
			"cutoff_time", cutoff,
		)

		deleted, err := p.storage.Delete(ctx, &history.Query{EndTime: &cutoff})
		total += deleted
		if err != nil {
			return total, fmt.Errorf("delete failed: %w", err)
		}
		if deleted == 0 {
			return total, nil
		}
	}
}

func (p *Pruner) record(n int64) {
	if p.metrics != nil && n > 0 {
		p.metrics.RecordHistoryPruned(n)
	}
}
