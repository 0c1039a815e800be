package document

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/viant/offload/model/types"
	"github.com/viant/offload/worker"
	"gopkg.in/yaml.v3"
)

// SaveInput defines parameters for serializing a document.
type SaveInput struct {
	Document *Document `json:"document" required:"true"`
	// Materialize writes the serialized document to content-addressed temp
	// storage and returns its URL, so the caller can re-fetch it without
	// resubmitting the document.
	Materialize bool `json:"materialize,omitempty"`
}

// SaveOutput contains the serialized document.
type SaveOutput struct {
	Data   []byte `json:"data"`
	Size   int    `json:"size"`
	Digest string `json:"digest"`
	URL    string `json:"url,omitempty"`
}

func (s *Service) save(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*SaveInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*SaveOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Save(ctx, input, output)
}

// Save serializes a document to canonical YAML.
func (s *Service) Save(ctx context.Context, input *SaveInput, output *SaveOutput) error {
	if input.Document == nil {
		return fmt.Errorf("document is required")
	}
	data, err := yaml.Marshal(input.Document)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	output.Data = data
	output.Size = len(data)
	output.Digest = fmt.Sprintf("%016x", xxhash.Sum64(data))
	if input.Materialize {
		worker.Report(ctx, "materializing document", 50)
		if output.URL, err = s.tracker.Materialize(ctx, data, ".yaml"); err != nil {
			return err
		}
	}
	return nil
}
