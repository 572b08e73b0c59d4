// Package eventqueue buffers behavioral events in a bounded in-memory queue
// and flushes them in batches to a durable store, retrying transient failures
// with exponential backoff.
//
// The queue favors recency over completeness: when full, the oldest event is
// dropped to make room for the newest. Flushes are single-flight; a flush
// triggered while another is running is a no-op and the pending events wait
// for the next cycle. After a successful persist each event of the batch is
// handed to the configured processor (the rule engine) in enqueue order.
// Persistence and rule evaluation are independent side effects of the same
// flush; a batch that exhausts its retries is requeued (bounded) so a later
// flush can try again. This is deliberately best-effort, not exactly-once.
package eventqueue
