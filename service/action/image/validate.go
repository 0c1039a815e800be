package image

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/viant/offload/model/types"
)

// ValidateInput defines parameters for image validation.
type ValidateInput struct {
	Data []byte `json:"data" required:"true"`
}

// ValidateOutput contains the validation verdict. A decode failure is a
// verdict, not a handler error: the caller asked whether the bytes are a
// usable image and "no" is a valid answer.
type ValidateOutput struct {
	Valid  bool   `json:"valid"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Service) validate(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*ValidateInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*ValidateOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Validate(ctx, input, output)
}

// Validate checks that the bytes decode as a supported image format.
func (s *Service) Validate(_ context.Context, input *ValidateInput, output *ValidateOutput) error {
	config, format, err := image.DecodeConfig(bytes.NewReader(input.Data))
	if err != nil {
		output.Valid = false
		output.Reason = err.Error()
		return nil
	}
	output.Valid = true
	output.Format = format
	output.Width = config.Width
	output.Height = config.Height
	return nil
}
