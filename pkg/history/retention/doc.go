// Package retention prunes the lifecycle history.
//
// Events are removed in two passes: first everything older than
// RetentionDays, then the oldest events until at most MaxRecords remain.
// Either limit is disabled by setting it to zero.
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 30,
//	    MaxRecords:    10000,
//	    PruneSchedule: "0 3 * * *",
//	}, collector)
//
//	scheduler := retention.NewScheduler(pruner)
//	if err := scheduler.Start(ctx); err != nil {
//	    return err
//	}
//	defer scheduler.Stop()
//
// The schedule is a standard 5-field cron expression. An empty schedule
// leaves pruning to explicit Prune calls.
package retention
