package image

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/viant/offload/model/types"
	"github.com/viant/offload/worker"
)

// HashInput defines parameters for content hashing.
type HashInput struct {
	Data []byte `json:"data" required:"true"`
	Ext  string `json:"ext,omitempty"`
}

// HashOutput contains the content digest and the materialized artifact
// reference: a stable address the UI can re-fetch without resubmitting the
// original bytes.
type HashOutput struct {
	Hash     string `json:"hash"`
	TempPath string `json:"tempPath"`
	Size     int    `json:"size"`
}

func (s *Service) hash(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*HashInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*HashOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Hash(ctx, input, output)
}

// Hash digests the image bytes and materializes them to their
// content-addressed location. Hashing the same bytes twice yields the same
// path regardless of task identity.
func (s *Service) Hash(ctx context.Context, input *HashInput, output *HashOutput) error {
	if len(input.Data) == 0 {
		return fmt.Errorf("image data is required")
	}
	ext := input.Ext
	if ext == "" {
		ext = sniffExt(input.Data)
	}
	output.Hash = fmt.Sprintf("%016x", xxhash.Sum64(input.Data))
	output.Size = len(input.Data)
	worker.Report(ctx, "materializing image", 50)
	URL, err := s.tracker.Materialize(ctx, input.Data, ext)
	if err != nil {
		return err
	}
	output.TempPath = URL
	return nil
}

// sniffExt guesses a file extension from magic bytes; unknown content gets a
// neutral .bin suffix.
func sniffExt(data []byte) string {
	switch {
	case len(data) > 2 && data[0] == 0xff && data[1] == 0xd8:
		return ".jpg"
	case len(data) > 8 && string(data[1:4]) == "PNG":
		return ".png"
	case len(data) > 6 && string(data[:6]) == "GIF87a" || len(data) > 6 && string(data[:6]) == "GIF89a":
		return ".gif"
	default:
		return ".bin"
	}
}
