// Package limits derives pool and governor ceilings (worker count, memory,
// timeouts, GC cadence) from detected host capability.
package limits
