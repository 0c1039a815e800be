package document

// Document is the worker-side representation of an editor document. The
// coordinator treats it as opaque data; only the handlers below interpret it.
type Document struct {
	Title    string            `json:"title,omitempty" yaml:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Blocks   []*Block          `json:"blocks,omitempty" yaml:"blocks,omitempty"`
}

// Block is a single content unit: a heading, a paragraph or an image
// reference pointing at a content-addressed temp artifact.
type Block struct {
	Kind  string `json:"kind" yaml:"kind"`
	Level int    `json:"level,omitempty" yaml:"level,omitempty"`
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
	Ref   string `json:"ref,omitempty" yaml:"ref,omitempty"`
}
