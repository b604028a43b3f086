// Package scheduler triggers jobs from cron specs in a fixed time zone.
//
// Each schedule runs at most one instance at a time: a trigger that fires while the
// previous run is still executing is skipped, not queued. Stop halts triggering,
// cancels the context handed to running jobs and waits for them to return.
package scheduler
