package document

import (
	"reflect"
	"strings"

	"github.com/viant/offload/model/types"
	"github.com/viant/offload/worker"
)

const name = "document"

// Service parses, serializes and diffs editor documents. Documents travel as
// YAML; parsing them in a worker keeps large or hostile inputs out of the
// coordinator's heap.
type Service struct {
	tracker *worker.TempTracker
}

// New creates a document service backed by the supplied temp tracker.
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
			Name:   "load",
			Input:  reflect.TypeOf(&LoadInput{}),
			Output: reflect.TypeOf(&LoadOutput{}),
		},
		{
			Name:   "save",
			Input:  reflect.TypeOf(&SaveInput{}),
			Output: reflect.TypeOf(&SaveOutput{}),
		},
		{
			Name:   "diff",
			Input:  reflect.TypeOf(&DiffInput{}),
			Output: reflect.TypeOf(&DiffOutput{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "load":
		return s.load, nil
	case "save":
		return s.save, nil
	case "diff":
		return s.diff, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}
