package document

import (
	"context"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/viant/offload/model/types"
)

// DiffInput defines parameters for comparing two document revisions.
type DiffInput struct {
	Original []byte `json:"original"`
	Modified []byte `json:"modified"`
	Path     string `json:"path,omitempty"`
	Context  int    `json:"context,omitempty"`
}

// DiffOutput contains a unified diff with insertion/deletion statistics.
type DiffOutput struct {
	Diff    string `json:"diff"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

func (s *Service) diff(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*DiffInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*DiffOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Diff(ctx, input, output)
}

// Diff produces a GNU unified diff between two document revisions. Identical
// inputs yield an empty diff.
func (s *Service) Diff(_ context.Context, input *DiffInput, output *DiffOutput) error {
	contextLines := input.Context
	if contextLines <= 0 {
		contextLines = 3
	}
	if string(input.Original) == string(input.Modified) {
		return nil
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(input.Original)),
		B:        difflib.SplitLines(string(input.Modified)),
		FromFile: input.Path + " (original)",
		ToFile:   input.Path + " (modified)",
		Context:  contextLines,
	}
	patch, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			output.Added++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			output.Removed++
		}
	}
	output.Diff = patch
	return nil
}
