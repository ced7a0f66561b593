// Package scheduler registers named triggers (cron, interval, one-shot) and
// enqueues a task on the engine each time one fires. Execution, retries and
// overlap gating belong to the engine.
package scheduler
