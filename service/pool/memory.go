package pool

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/viant/offload/model"
)

// residentMemory reads the resident set size of a process in bytes.
func residentMemory(pid int) (uint64, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// sampleLoop periodically measures worker resident memory and kills any
// worker above its ceiling. Sampling failures are ignored: a worker that
// cannot be measured is never killed on suspicion.
func (s *Service) sampleLoop(ctx context.Context) {
	defer s.loopWg.Done()
	ticker := time.NewTicker(s.sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sampleMemory()
		case <-s.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) sampleMemory() {
	s.mu.Lock()
	candidates := make([]*handle, 0, len(s.workers))
	for _, h := range s.workers {
		candidates = append(candidates, h)
	}
	s.mu.Unlock()

	for _, h := range candidates {
		pid := h.transport.PID()
		if pid <= 0 || h.memoryCeiling == 0 {
			continue
		}
		switch h.getState() {
		case StateIdle, StateBusy:
		default:
			continue
		}
		rss, err := s.sampler(pid)
		if err != nil {
			continue
		}
		if rss <= h.memoryCeiling {
			continue
		}
		log.Printf("pool: worker %v exceeded memory ceiling (%v > %v bytes), terminating", h.id, rss, h.memoryCeiling)
		h.resolve(&model.Outcome{
			TaskID:  h.currentTask(),
			Kind:    model.OutcomeError,
			Reason:  model.ReasonResourceExhaustion,
			Message: fmt.Sprintf("worker resident memory %d bytes exceeded ceiling %d bytes", rss, h.memoryCeiling),
		})
		s.kill(h, model.ReasonResourceExhaustion)
	}
}
