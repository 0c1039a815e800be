package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/viant/offload/worker"
)

func newTestService(t *testing.T) *Service {
	return New(worker.NewTempTracker("file://" + t.TempDir()))
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	buffer := &bytes.Buffer{}
	err := jpeg.Encode(buffer, image.NewRGBA(image.Rect(0, 0, width, height)), nil)
	assert.Nil(t, err)
	return buffer.Bytes()
}

func encodePNG(t *testing.T, width, height int) []byte {
	buffer := &bytes.Buffer{}
	err := png.Encode(buffer, image.NewRGBA(image.Rect(0, 0, width, height)))
	assert.Nil(t, err)
	return buffer.Bytes()
}

func TestService_Hash(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	// A pasted screenshot sized payload.
	content := bytes.Repeat([]byte{0x42}, 512*1024)
	output := &HashOutput{}
	err := service.Hash(ctx, &HashInput{Data: content}, output)
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64(content)), output.Hash)
	assert.Equal(t, 16, len(output.Hash))
	assert.Equal(t, 512*1024, output.Size)
	assert.NotEmpty(t, output.TempPath)

	// Same bytes, same address: a second submission de-duplicates.
	repeat := &HashOutput{}
	err = service.Hash(ctx, &HashInput{Data: content}, repeat)
	assert.Nil(t, err)
	assert.Equal(t, output.Hash, repeat.Hash)
	assert.Equal(t, output.TempPath, repeat.TempPath)

	err = service.Hash(ctx, &HashInput{}, &HashOutput{})
	assert.NotNil(t, err, "empty data")
}

func TestService_Validate(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	testCases := []struct {
		description string
		data        []byte
		valid       bool
		format      string
	}{
		{
			description: "valid png",
			data:        encodePNG(t, 12, 8),
			valid:       true,
			format:      "png",
		},
		{
			description: "valid jpeg",
			data:        encodeJPEG(t, 4, 4),
			valid:       true,
			format:      "jpeg",
		},
		{
			description: "garbage is a verdict, not an error",
			data:        []byte("definitely not an image"),
			valid:       false,
		},
	}
	for _, testCase := range testCases {
		output := &ValidateOutput{}
		err := service.Validate(ctx, &ValidateInput{Data: testCase.data}, output)
		if !assert.Nil(t, err, testCase.description) {
			continue
		}
		assert.Equal(t, testCase.valid, output.Valid, testCase.description)
		assert.Equal(t, testCase.format, output.Format, testCase.description)
		if !testCase.valid {
			assert.NotEmpty(t, output.Reason, testCase.description)
		}
	}
}

func TestService_Thumbnail(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	output := &ThumbnailOutput{}
	err := service.Thumbnail(ctx, &ThumbnailInput{Data: encodeJPEG(t, 640, 480), MaxWidth: 320, MaxHeight: 240}, output)
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, 320, output.Width)
	assert.Equal(t, 240, output.Height)
	assert.NotEmpty(t, output.URL)
	assert.True(t, output.Size > 0)

	// Already within bounds: no upscale.
	small := &ThumbnailOutput{}
	err = service.Thumbnail(ctx, &ThumbnailInput{Data: encodeJPEG(t, 100, 80), MaxWidth: 320, MaxHeight: 240}, small)
	assert.Nil(t, err)
	assert.Equal(t, 100, small.Width)
	assert.Equal(t, 80, small.Height)

	err = service.Thumbnail(ctx, &ThumbnailInput{Data: []byte("junk")}, &ThumbnailOutput{})
	assert.NotNil(t, err)
}

func TestService_Optimize(t *testing.T) {
	service := newTestService(t)
	output := &OptimizeOutput{}
	err := service.Optimize(context.Background(), &OptimizeInput{Data: encodeJPEG(t, 64, 64), Quality: 40}, output)
	if !assert.Nil(t, err) {
		return
	}
	assert.NotEmpty(t, output.URL)
	assert.True(t, output.Size > 0)
	assert.True(t, output.Size <= output.OriginalSize)
}

func TestService_Materialize(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	content := encodePNG(t, 3, 3)

	output := &MaterializeOutput{}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(content)
	err := service.Materialize(ctx, &MaterializeInput{DataURI: uri}, output)
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, len(content), output.Size)
	assert.Contains(t, output.URL, ".png")

	// Raw bytes address to the same URL as the data-URI form.
	raw := &MaterializeOutput{}
	err = service.Materialize(ctx, &MaterializeInput{Data: content}, raw)
	assert.Nil(t, err)
	assert.Equal(t, output.URL, raw.URL)
	assert.Equal(t, output.Hash, raw.Hash)

	err = service.Materialize(ctx, &MaterializeInput{DataURI: "data:image/png;base64,!!!"}, &MaterializeOutput{})
	assert.NotNil(t, err, "invalid base64")
	err = service.Materialize(ctx, &MaterializeInput{}, &MaterializeOutput{})
	assert.NotNil(t, err, "no content")
}

func TestSniffExt(t *testing.T) {
	assert.Equal(t, ".png", sniffExt(encodePNG(t, 2, 2)))
	assert.Equal(t, ".jpg", sniffExt(encodeJPEG(t, 2, 2)))
	assert.Equal(t, ".bin", sniffExt([]byte("plain bytes")))
}
