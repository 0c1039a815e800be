// Package governor keeps background work subordinate to the interactive
// foreground. It tracks user-activity signals, demotes worker OS priority and
// reclaims memory through idle and deep-idle states, and restores full
// priority the moment activity resumes. All of its adjustments are advisory.
package governor
