package cleanup

import (
	"context"
	"reflect"
	"strings"

	"github.com/viant/offload/model/types"
	"github.com/viant/offload/worker"
)

const name = "cleanup"

// Service reclaims temp artifacts tracked by the worker. It is the explicit
// counterpart of the sweep that runs on graceful termination; both drain the
// same tracking set, so nothing registered can outlive both paths.
type Service struct {
	tracker *worker.TempTracker
}

// New creates a cleanup service backed by the supplied temp tracker.
func New(tracker *worker.TempTracker) *Service {
	return &Service{tracker: tracker}
}

// Name returns the service name
func (s *Service) Name() string {
	return name
}

// Methods returns the service methods
func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:   "sweep",
			Input:  reflect.TypeOf(&SweepInput{}),
			Output: reflect.TypeOf(&SweepOutput{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "sweep":
		return s.sweep, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

// SweepInput selects what to reclaim: specific artifact URLs, or everything
// tracked when URLs is empty.
type SweepInput struct {
	URLs []string `json:"urls,omitempty"`
}

// SweepOutput reports how many artifacts were removed and how many remain
// tracked.
type SweepOutput struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

func (s *Service) sweep(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*SweepInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*SweepOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Sweep(ctx, input, output)
}

// Sweep removes artifacts and reports the count.
func (s *Service) Sweep(ctx context.Context, input *SweepInput, output *SweepOutput) error {
	if len(input.URLs) == 0 {
		removed, err := s.tracker.Sweep(ctx)
		output.Removed = removed
		output.Remaining = len(s.tracker.Tracked())
		return err
	}
	for _, URL := range input.URLs {
		if err := s.tracker.Remove(ctx, URL); err != nil {
			return err
		}
		output.Removed++
	}
	output.Remaining = len(s.tracker.Tracked())
	return nil
}
