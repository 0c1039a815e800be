package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/viant/offload/model/types"
	"github.com/viant/offload/worker"
)

const name = "archive"

// maxEntrySize caps a single decompressed entry to keep a hostile archive
// from exhausting the worker before the memory-ceiling sampler notices.
const maxEntrySize = 256 << 20

// Service extracts document archives (zip bundles produced by export or
// received from the document library) into tracked temp storage.
type Service struct {
	tracker *worker.TempTracker
}

// New creates an archive service backed by the supplied temp tracker.
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
			Name:   "extract",
			Input:  reflect.TypeOf(&ExtractInput{}),
			Output: reflect.TypeOf(&ExtractOutput{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "extract":
		return s.extract, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

// ExtractInput defines parameters for archive extraction.
type ExtractInput struct {
	Data []byte `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Entry describes one extracted archive member.
type Entry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int    `json:"size"`
}

// ExtractOutput lists the extracted entries; each lives at a
// content-addressed URL registered with the worker's temp tracker.
type ExtractOutput struct {
	Entries []*Entry `json:"entries"`
}

func (s *Service) extract(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*ExtractInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*ExtractOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Extract(ctx, input, output)
}

// Extract unpacks a zip archive into tracked temp storage. Entries with path
// traversal names are rejected, directories are skipped (content addressing
// flattens the namespace).
func (s *Service) Extract(ctx context.Context, input *ExtractInput, output *ExtractOutput) error {
	data := input.Data
	if len(data) == 0 && input.URL != "" {
		var err error
		if data, err = s.tracker.Download(ctx, input.URL); err != nil {
			return fmt.Errorf("failed to read archive %v: %w", input.URL, err)
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("archive data or url is required")
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	total := len(reader.File)
	for i, entry := range reader.File {
		if strings.Contains(entry.Name, "..") {
			return fmt.Errorf("archive entry %q escapes extraction root", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			continue
		}
		content, err := readEntry(entry)
		if err != nil {
			return fmt.Errorf("failed to read archive entry %q: %w", entry.Name, err)
		}
		URL, err := s.tracker.Materialize(ctx, content, ext(entry.Name))
		if err != nil {
			return err
		}
		output.Entries = append(output.Entries, &Entry{Name: entry.Name, URL: URL, Size: len(content)})
		worker.Report(ctx, fmt.Sprintf("extracted %v", entry.Name), float64(i+1)/float64(total)*100)
	}
	return nil
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	content, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxEntrySize {
		return nil, fmt.Errorf("entry exceeds %d byte limit", maxEntrySize)
	}
	return content, nil
}

func ext(name string) string {
	if idx := strings.LastIndex(name, "."); idx != -1 {
		return name[idx:]
	}
	return ""
}
