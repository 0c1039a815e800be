package protocol

import "strings"

// Operation identifies a worker task kind. The set is closed: workers only
// dispatch operations listed below and the pool rejects anything else before
// spawning a process. The string form is service/method so that the worker
// registry can route it to the owning action service.
type Operation string

const (
	DocumentLoad Operation = "document/load"
	DocumentSave Operation = "document/save"
	DocumentDiff Operation = "document/diff"

	ArchiveExtract Operation = "archive/extract"

	ImageHash        Operation = "image/hash"
	ImageMaterialize Operation = "image/materialize"
	ImageOptimize    Operation = "image/optimize"
	ImageThumbnail   Operation = "image/thumbnail"
	ImageValidate    Operation = "image/validate"

	Cleanup Operation = "cleanup/sweep"
)

// Operations returns the closed set of supported operations.
func Operations() []Operation {
	return []Operation{
		DocumentLoad, DocumentSave, DocumentDiff,
		ArchiveExtract,
		ImageHash, ImageMaterialize, ImageOptimize, ImageThumbnail, ImageValidate,
		Cleanup,
	}
}

// Known reports whether the operation belongs to the closed set.
func (o Operation) Known() bool {
	switch o {
	case DocumentLoad, DocumentSave, DocumentDiff,
		ArchiveExtract,
		ImageHash, ImageMaterialize, ImageOptimize, ImageThumbnail, ImageValidate,
		Cleanup:
		return true
	}
	return false
}

// Service returns the action service part of the operation name.
func (o Operation) Service() string {
	if idx := strings.Index(string(o), "/"); idx != -1 {
		return string(o)[:idx]
	}
	return string(o)
}

// Method returns the method part of the operation name.
func (o Operation) Method() string {
	if idx := strings.Index(string(o), "/"); idx != -1 {
		return string(o)[idx+1:]
	}
	return ""
}
