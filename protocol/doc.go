// Package protocol defines the message contract between the coordinator and
// a detached worker process: task dispatch, progress reporting and terminal
// result/error frames, exchanged as newline-delimited JSON over the worker's
// stdin/stdout. Lifecycle signalling (graceful and forced termination) is
// out-of-band via OS signals and intentionally not part of the frame set.
//
// Ordering: frames for a given task are delivered in the order the worker
// emitted them and the terminal frame is always the last one observed for
// that task id. No ordering is guaranteed across tasks.
package protocol
