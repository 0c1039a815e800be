package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/viant/offload/model/types"
)

// OptimizeInput defines parameters for re-encoding an image at a bounded
// quality.
type OptimizeInput struct {
	Data    []byte `json:"data" required:"true"`
	Quality int    `json:"quality,omitempty"`
}

// OptimizeOutput references whichever encoding came out smaller.
type OptimizeOutput struct {
	URL          string `json:"url"`
	OriginalSize int    `json:"originalSize"`
	Size         int    `json:"size"`
	Optimized    bool   `json:"optimized"`
}

func (s *Service) optimize(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*OptimizeInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*OptimizeOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Optimize(ctx, input, output)
}

// Optimize re-encodes the image as JPEG at the requested quality and keeps
// the smaller of the two renditions.
func (s *Service) Optimize(ctx context.Context, input *OptimizeInput, output *OptimizeOutput) error {
	source, _, err := image.Decode(bytes.NewReader(input.Data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	quality := input.Quality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	buffer := &bytes.Buffer{}
	if err = jpeg.Encode(buffer, source, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to re-encode image: %w", err)
	}
	output.OriginalSize = len(input.Data)
	content, ext := input.Data, sniffExt(input.Data)
	if buffer.Len() < len(input.Data) {
		content, ext = buffer.Bytes(), ".jpg"
		output.Optimized = true
	}
	if output.URL, err = s.tracker.Materialize(ctx, content, ext); err != nil {
		return err
	}
	output.Size = len(content)
	return nil
}
