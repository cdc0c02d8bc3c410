// Package actionq serializes every outbound platform mutation through a
// single unbounded FIFO drained by one worker.
//
// Enqueue is fire-and-forget: callers that need a result (e.g. the handle of
// a freshly posted announcement) must make that call synchronously and only
// enqueue the follow-up operations. The worker executes one job at a time and
// paces itself between jobs, so at most one platform write is ever in flight.
//
// A failing job is logged and skipped; it never stops the loop and is never
// retried.
package actionq
