// Package worker implements the runtime hosted by each detached worker
// process: a serial task loop over the protocol streams, a registry of action
// services with typed inputs and outputs, and a tracker that owns every temp
// artifact the process creates so the graceful-termination sweep and the
// explicit cleanup operation reclaim the same set.
package worker
