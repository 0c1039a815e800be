package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/viant/offload"
	"github.com/viant/offload/worker"
)

// offload-worker speaks the task protocol on stdin/stdout; everything else,
// including diagnostics, goes to stderr.
func main() {
	log.SetOutput(os.Stderr)
	tempBaseURL := flag.String("temp", "", "base URL for temp artifacts (default: OS temp dir)")
	flag.Parse()

	runtime := offload.NewWorkerRuntime(*tempBaseURL, worker.WithOSSignals())
	if err := runtime.Run(context.Background()); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}
