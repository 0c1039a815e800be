package image

import (
	"reflect"
	"strings"

	"github.com/viant/offload/model/types"
	"github.com/viant/offload/worker"
)

const name = "image"

// Service performs memory-heavy image work on behalf of the coordinator:
// content hashing, temp materialization, validation, thumbnailing and
// re-encoding. Decoded pixel data never crosses the protocol boundary; only
// artifact references do.
type Service struct {
	tracker *worker.TempTracker
}

// New creates an image service backed by the supplied temp tracker.
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
			Name:   "hash",
			Input:  reflect.TypeOf(&HashInput{}),
			Output: reflect.TypeOf(&HashOutput{}),
		},
		{
			Name:   "materialize",
			Input:  reflect.TypeOf(&MaterializeInput{}),
			Output: reflect.TypeOf(&MaterializeOutput{}),
		},
		{
			Name:   "optimize",
			Input:  reflect.TypeOf(&OptimizeInput{}),
			Output: reflect.TypeOf(&OptimizeOutput{}),
		},
		{
			Name:   "thumbnail",
			Input:  reflect.TypeOf(&ThumbnailInput{}),
			Output: reflect.TypeOf(&ThumbnailOutput{}),
		},
		{
			Name:   "validate",
			Input:  reflect.TypeOf(&ValidateInput{}),
			Output: reflect.TypeOf(&ValidateOutput{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "hash":
		return s.hash, nil
	case "materialize":
		return s.materialize, nil
	case "optimize":
		return s.optimize, nil
	case "thumbnail":
		return s.thumbnail, nil
	case "validate":
		return s.validate, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}
