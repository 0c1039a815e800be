package document

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/viant/offload/model/types"
	"github.com/viant/offload/worker"
	"gopkg.in/yaml.v3"
)

// LoadInput defines parameters for parsing a document. Either inline Data or
// a URL of a previously materialized artifact must be supplied.
type LoadInput struct {
	Data []byte `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// LoadOutput contains the parsed document and its content digest.
type LoadOutput struct {
	Document *Document `json:"document"`
	Blocks   int       `json:"blocks"`
	Size     int       `json:"size"`
	Digest   string    `json:"digest"`
}

func (s *Service) load(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*LoadInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*LoadOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Load(ctx, input, output)
}

// Load parses YAML document bytes.
func (s *Service) Load(ctx context.Context, input *LoadInput, output *LoadOutput) error {
	data := input.Data
	if len(data) == 0 && input.URL != "" {
		var err error
		if data, err = s.tracker.Download(ctx, input.URL); err != nil {
			return fmt.Errorf("failed to read document %v: %w", input.URL, err)
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("document data or url is required")
	}
	worker.Report(ctx, "parsing document", 10)
	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	worker.Report(ctx, "parsed document", 90)
	output.Document = doc
	output.Blocks = len(doc.Blocks)
	output.Size = len(data)
	output.Digest = fmt.Sprintf("%016x", xxhash.Sum64(data))
	return nil
}
