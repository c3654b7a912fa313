// Package digest is the scheduling and dispatch core.
//
// A daily cron tick (in the fixed business timezone) walks the eligible
// teams and enqueues delayed send jobs; at their ETA the executors re-check
// eligibility, build the email and hand it to the transport. Transient
// transport failures are retried by the queue on a fixed countdown;
// eligibility failures are permanent skips.
package digest
