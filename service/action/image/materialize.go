package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/viant/offload/model/types"
)

// MaterializeInput accepts either raw bytes or a data-URI (the form image
// payloads arrive in from the editor's clipboard and drag-and-drop paths).
type MaterializeInput struct {
	Data    []byte `json:"data,omitempty"`
	DataURI string `json:"dataURI,omitempty"`
	Ext     string `json:"ext,omitempty"`
}

// MaterializeOutput contains the artifact reference.
type MaterializeOutput struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
	Size int    `json:"size"`
}

func (s *Service) materialize(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*MaterializeInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*MaterializeOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Materialize(ctx, input, output)
}

// Materialize writes image content to tracked, content-addressed temp
// storage.
func (s *Service) Materialize(ctx context.Context, input *MaterializeInput, output *MaterializeOutput) error {
	data := input.Data
	ext := input.Ext
	if len(data) == 0 && input.DataURI != "" {
		var err error
		var mediaType string
		if data, mediaType, err = decodeDataURI(input.DataURI); err != nil {
			return err
		}
		if ext == "" {
			ext = extForMediaType(mediaType)
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("image data or dataURI is required")
	}
	if ext == "" {
		ext = sniffExt(data)
	}
	URL, err := s.tracker.Materialize(ctx, data, ext)
	if err != nil {
		return err
	}
	output.URL = URL
	output.Hash = fmt.Sprintf("%016x", xxhash.Sum64(data))
	output.Size = len(data)
	return nil
}

// decodeDataURI parses data:[<mediatype>][;base64],<payload>.
func decodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", fmt.Errorf("not a data URI")
	}
	idx := strings.Index(uri, ",")
	if idx == -1 {
		return nil, "", fmt.Errorf("malformed data URI")
	}
	meta, payload := uri[5:idx], uri[idx+1:]
	mediaType := meta
	base64Encoded := false
	if strings.HasSuffix(meta, ";base64") {
		base64Encoded = true
		mediaType = strings.TrimSuffix(meta, ";base64")
	}
	if !base64Encoded {
		return []byte(payload), mediaType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode data URI payload: %w", err)
	}
	return data, mediaType, nil
}

func extForMediaType(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	}
	return ""
}
