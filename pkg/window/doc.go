// Package window implements keyed fixed-window frequency counting used by the
// rule engine for trend detection.
//
// A fixed-window counter resets to zero whenever the elapsed time since the
// window started exceeds the configured window length. It deliberately trades
// boundary precision for O(1) updates: a burst straddling two windows may be
// under-counted and a burst right after a reset may look relatively larger.
// That margin of error is acceptable for trend detection.
//
// The CounterStore interface allows swapping the in-memory implementation for
// a shared backend (see storage/redis) when several ingest nodes must agree
// on counts.
package window
