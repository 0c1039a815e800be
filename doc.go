// Package offload moves heavy document, archive and image work out of the
// host application's process into a pool of short-lived worker processes.
//
// The host embeds the high-level Service facade: it spawns workers on demand
// up to an adaptive cap, speaks a newline-delimited JSON protocol with them
// over stdin/stdout, enforces per-task deadlines and per-worker memory
// ceilings, and keeps the whole pool subordinate to user activity via the
// priority governor:
//
//	srv, _ := offload.New(offload.WithWorkerBinary("offload-worker"))
//	_ = srv.Start(ctx)
//	outcome, _ := srv.Submit(ctx, protocol.ImageHash, payload, time.Minute)
//
// The worker binary is a thin shell over NewWorkerRuntime, which registers
// the built-in action services and processes one task at a time.
//
// For more details see the README and individual sub-packages.
package offload
