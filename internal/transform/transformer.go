// Package transform rewrites lines of known file types before they are
// loaded. Transformers are selected by name from the validation rule of the
// file's pattern and resolved through a fixed table of constructors.
package transform

// Transformer rewrites one line at a time.
type Transformer interface {
	// TransformLine returns the line to keep. Returning false drops the line.
	TransformLine(line string, lineNumber int) (string, bool)

	// RequiresTransformation reports whether the transformer ever changes
	// input. When false the data is not streamed through it at all.
	RequiresTransformation() bool

	Initialize() error
	Cleanup()
}

// Noop leaves every line unchanged.
type Noop struct{}

func (Noop) TransformLine(line string, _ int) (string, bool) { return line, true }
func (Noop) RequiresTransformation() bool                    { return false }
func (Noop) Initialize() error                               { return nil }
func (Noop) Cleanup()                                        {}
