package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// TempTracker owns the temp artifacts a worker creates while executing
// tasks. Every artifact is registered before the task's terminal frame is
// emitted, so no cleanup path can miss it: the explicit cleanup operation and
// the graceful-termination sweep both drain the same set.
type TempTracker struct {
	fs      afs.Service
	baseURL string
	mu      sync.Mutex
	tracked map[string]bool
}

// NewTempTracker creates a tracker rooted at baseURL. When baseURL is empty
// a per-process directory under the OS temp root is used.
func NewTempTracker(baseURL string) *TempTracker {
	if baseURL == "" {
		baseURL = url.Join("file://"+os.TempDir(), fmt.Sprintf("offload-%d", os.Getpid()))
	}
	return &TempTracker{
		fs:      afs.New(),
		baseURL: baseURL,
		tracked: make(map[string]bool),
	}
}

// BaseURL returns the artifact root.
func (t *TempTracker) BaseURL() string { return t.baseURL }

// ContentAddress computes the deterministic artifact URL for the given
// content: a 64-bit xxhash digest rendered as 16 hex characters, grouped by
// its first two characters. Identical bytes always map to the same URL, so
// repeated submissions of the same content de-duplicate naturally.
func (t *TempTracker) ContentAddress(content []byte, ext string) string {
	digest := fmt.Sprintf("%016x", xxhash.Sum64(content))
	return url.Join(t.baseURL, digest[:2], digest+ext)
}

// Register records an artifact URL in the tracking set. It must be called
// before the owning task's terminal frame is sent.
func (t *TempTracker) Register(URL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracked[URL] = true
}

// Materialize writes content to its content-addressed location and registers
// it. Registration happens before the upload so that a partially written
// artifact is still reclaimed by a later sweep.
func (t *TempTracker) Materialize(ctx context.Context, content []byte, ext string) (string, error) {
	URL := t.ContentAddress(content, ext)
	t.Register(URL)
	if ok, _ := t.fs.Exists(ctx, URL); ok {
		return URL, nil
	}
	if err := t.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("failed to materialize artifact %v: %w", URL, err)
	}
	return URL, nil
}

// Tracked returns a copy of the currently tracked artifact URLs.
func (t *TempTracker) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]string, 0, len(t.tracked))
	for URL := range t.tracked {
		result = append(result, URL)
	}
	return result
}

// Remove deletes a single artifact and drops it from the tracking set.
func (t *TempTracker) Remove(ctx context.Context, URL string) error {
	t.mu.Lock()
	_, known := t.tracked[URL]
	delete(t.tracked, URL)
	t.mu.Unlock()
	if !known {
		return fmt.Errorf("artifact %v not tracked", URL)
	}
	if ok, _ := t.fs.Exists(ctx, URL); !ok {
		return nil
	}
	return t.fs.Delete(ctx, URL)
}

// Sweep removes every tracked artifact, returning how many were deleted. It
// keeps going past individual failures and reports the first error.
func (t *TempTracker) Sweep(ctx context.Context) (int, error) {
	URLs := t.Tracked()
	removed := 0
	var firstErr error
	for _, URL := range URLs {
		if err := t.Remove(ctx, URL); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// Download reads back a tracked or addressable artifact.
func (t *TempTracker) Download(ctx context.Context, URL string) ([]byte, error) {
	return t.fs.DownloadWithURL(ctx, URL)
}
