package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/offload/worker"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	buffer := &bytes.Buffer{}
	writer := zip.NewWriter(buffer)
	for name, content := range entries {
		entry, err := writer.Create(name)
		if !assert.Nil(t, err) {
			t.FailNow()
		}
		_, err = entry.Write([]byte(content))
		assert.Nil(t, err)
	}
	assert.Nil(t, writer.Close())
	return buffer.Bytes()
}

func TestService_Extract(t *testing.T) {
	tracker := worker.NewTempTracker("file://" + t.TempDir())
	service := New(tracker)
	ctx := context.Background()

	data := buildZip(t, map[string]string{
		"document.yaml":   "title: Imported\n",
		"media/photo.jpg": "jpeg bytes",
		"media/chart.png": "png bytes",
	})
	output := &ExtractOutput{}
	err := service.Extract(ctx, &ExtractInput{Data: data}, output)
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, 3, len(output.Entries))
	byName := map[string]*Entry{}
	for _, entry := range output.Entries {
		byName[entry.Name] = entry
		content, err := tracker.Download(ctx, entry.URL)
		assert.Nil(t, err, entry.Name)
		assert.Equal(t, entry.Size, len(content), entry.Name)
	}
	assert.Contains(t, byName["document.yaml"].URL, ".yaml")
	assert.Contains(t, byName["media/photo.jpg"].URL, ".jpg")
	// Every extracted entry is tracked for later sweep.
	assert.Equal(t, 3, len(tracker.Tracked()))
}

func TestService_ExtractRejectsTraversal(t *testing.T) {
	service := New(worker.NewTempTracker("file://" + t.TempDir()))
	data := buildZip(t, map[string]string{"../escape.txt": "nope"})
	err := service.Extract(context.Background(), &ExtractInput{Data: data}, &ExtractOutput{})
	if assert.NotNil(t, err) {
		assert.Contains(t, err.Error(), "escapes extraction root")
	}
}

func TestService_ExtractErrors(t *testing.T) {
	service := New(worker.NewTempTracker("file://" + t.TempDir()))
	err := service.Extract(context.Background(), &ExtractInput{}, &ExtractOutput{})
	assert.NotNil(t, err, "no content")
	err = service.Extract(context.Background(), &ExtractInput{Data: []byte("not a zip")}, &ExtractOutput{})
	assert.NotNil(t, err, "corrupt archive")
}
