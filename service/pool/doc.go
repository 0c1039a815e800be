// Package pool manages a bounded set of out-of-process workers. It spawns
// workers on demand up to an adaptive cap, dispatches one task per worker at
// a time over a newline-delimited JSON stream, enforces per-task deadlines
// and per-worker memory ceilings, and replaces workers that die or misbehave.
// Every submitted task resolves to exactly one terminal outcome.
package pool
