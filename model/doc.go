// Package model defines the data model shared by the pool manager, the
// worker runtime and callers: tasks, terminal outcomes, pool statistics and
// sentinel errors.
package model
