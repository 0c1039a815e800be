package governor

import (
	"context"
	"fmt"
	"os"
)

// Capabilities captures which adjustments the host permits. Probed once at
// startup; the rest of the governor consults the result instead of retrying
// operations the platform already refused.
type Capabilities struct {
	// CanRenice is true when the renice binary exists and accepts an
	// adjustment for our own process.
	CanRenice bool `json:"canRenice"`
	// CanAdjustGC is true when the runtime GC target may be changed.
	CanAdjustGC bool `json:"canAdjustGC"`
}

// probeCapabilities checks, once, what the platform allows. The renice probe
// re-applies the neutral priority to our own pid, which is always permitted
// when the binary exists and the process may adjust priorities at all.
func (s *Service) probeCapabilities(ctx context.Context) Capabilities {
	capabilities := Capabilities{
		// Pure runtime knob, always available.
		CanAdjustGC: true,
	}
	if s.runCommand == nil {
		return capabilities
	}
	status, err := s.runCommand(ctx, fmt.Sprintf("renice -n 0 -p %d", selfPid()))
	capabilities.CanRenice = err == nil && status == 0
	return capabilities
}

func selfPid() int {
	return os.Getpid()
}
