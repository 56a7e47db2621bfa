package contextify

import (
	"github.com/dop251/goja"
)

// Script is a compiled, immutable program that can run in any number of
// contexts.
type Script struct {
	source   string
	filename string
	prg      *goja.Program
}

// NewScript compiles source. A non-string source is a TypeError and
// unparsable source a SyntaxError.
func NewScript(source any, filename ...string) (*Script, error) {
	src, ok := source.(string)
	if !ok {
		return nil, newTypeError("createScript: source must be a string, got %T", source)
	}
	name := first(filename)
	if name == "" {
		name = DefaultFilename
	}
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, compileFailure(err)
	}
	return &Script{source: src, filename: name, prg: prg}, nil
}

// Source returns the script text.
func (s *Script) Source() string { return s.source }

// Filename returns the diagnostic label.
func (s *Script) Filename() string { return s.filename }

// RunInContext runs the script in c as Context.Run would.
func (s *Script) RunInContext(c *Context) (any, error) {
	if c == nil {
		return nil, ErrIncompatibleContext
	}
	e, err := c.enter(OpRun)
	if err != nil {
		return nil, err
	}
	return e.runProgram(s.prg)
}

// compileFailure classifies an error from goja.Compile. Parser errors are
// syntax errors too.
func compileFailure(err error) *ScriptError {
	switch err := err.(type) {
	case *goja.CompilerSyntaxError:
		return &ScriptError{Kind: KindSyntax, Name: KindSyntax.String(), Message: err.Message, Stack: err.Error(), cause: err}
	case *goja.CompilerReferenceError:
		return &ScriptError{Kind: KindReference, Name: KindReference.String(), Message: err.Message, Stack: err.Error(), cause: err}
	}
	return &ScriptError{Kind: KindSyntax, Name: KindSyntax.String(), Message: err.Error(), cause: err}
}
