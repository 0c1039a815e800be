package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/viant/offload/model/types"
	"github.com/viant/offload/worker"
	"golang.org/x/image/draw"
)

// ThumbnailInput defines parameters for thumbnail generation.
type ThumbnailInput struct {
	Data      []byte `json:"data" required:"true"`
	MaxWidth  int    `json:"maxWidth,omitempty"`
	MaxHeight int    `json:"maxHeight,omitempty"`
	Quality   int    `json:"quality,omitempty"`
}

// ThumbnailOutput references the scaled artifact.
type ThumbnailOutput struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int    `json:"size"`
}

func (s *Service) thumbnail(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*ThumbnailInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*ThumbnailOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Thumbnail(ctx, input, output)
}

// Thumbnail decodes, scales down preserving aspect ratio and re-encodes as
// JPEG into tracked temp storage. Images already within bounds are written
// as-is.
func (s *Service) Thumbnail(ctx context.Context, input *ThumbnailInput, output *ThumbnailOutput) error {
	maxWidth, maxHeight := input.MaxWidth, input.MaxHeight
	if maxWidth <= 0 {
		maxWidth = 320
	}
	if maxHeight <= 0 {
		maxHeight = 240
	}
	worker.Report(ctx, "decoding image", 10)
	source, _, err := image.Decode(bytes.NewReader(input.Data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := source.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	scale := 1.0
	if width > maxWidth {
		scale = float64(maxWidth) / float64(width)
	}
	if s2 := float64(maxHeight) / float64(height); height > maxHeight && s2 < scale {
		scale = s2
	}
	targetWidth, targetHeight := width, height
	if scale < 1.0 {
		targetWidth = int(float64(width) * scale)
		targetHeight = int(float64(height) * scale)
		worker.Report(ctx, "scaling image", 40)
		target := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
		draw.CatmullRom.Scale(target, target.Bounds(), source, bounds, draw.Over, nil)
		source = target
	}
	quality := input.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	worker.Report(ctx, "encoding thumbnail", 70)
	buffer := &bytes.Buffer{}
	if err = jpeg.Encode(buffer, source, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	URL, err := s.tracker.Materialize(ctx, buffer.Bytes(), ".jpg")
	if err != nil {
		return err
	}
	output.URL = URL
	output.Width = targetWidth
	output.Height = targetHeight
	output.Size = buffer.Len()
	return nil
}
