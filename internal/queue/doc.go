// Package queue is the async dispatch layer for scheduled send jobs.
//
// It provides a small worker pool fed by a buffered channel, one-shot timers
// for jobs with a future RunAt, and a fixed-delay retry policy per job.
// Delivery is at-least-once with no ordering guarantee across jobs; once
// enqueued, a delayed job runs unless the whole queue is stopped.
package queue
