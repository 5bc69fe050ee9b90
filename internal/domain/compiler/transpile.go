package compiler

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/go-sourcemap/sourcemap"
)

const (
	sourceName    = "component.tsx"
	generatedName = "component.js"
)

// transformOptions lowers TSX to CommonJS: markup becomes createElement
// calls, annotations are stripped, and every import surfaces as a
// require("...") call. Dynamic import() is marked unsupported so esbuild
// lowers it to a require as well. verbatimModuleSyntax keeps unused imports
// so the dependency scan still sees them.
var transformOptions = api.TransformOptions{
	Loader:      api.LoaderTSX,
	Sourcefile:  sourceName,
	Format:      api.FormatCommonJS,
	Target:      api.ES2017,
	JSX:         api.JSXTransform,
	JSXFactory:  "React.createElement",
	JSXFragment: "React.Fragment",
	Sourcemap:   api.SourceMapExternal,
	TsconfigRaw: `{"compilerOptions":{"verbatimModuleSyntax":true}}`,
	LogLevel:    api.LogLevelSilent,
	Supported:   map[string]bool{"dynamic-import": false},
}

// unit is a transpiled source together with its syntax tree and a mapping
// back to the original text.
type unit struct {
	code      string
	program   *ast.Program
	positions *positions
}

// transpile runs the parse and generate stages. Parse failures come back as
// ParseError diagnostics.
func transpile(src string) (*unit, []Diagnostic) {
	res := api.Transform(src, transformOptions)
	if len(res.Errors) > 0 {
		diags := make([]Diagnostic, 0, len(res.Errors))
		for _, msg := range res.Errors {
			diags = append(diags, parseDiagnostic(msg))
		}
		return nil, dedupe(diags)
	}

	code := string(res.Code)
	program, err := parser.ParseFile(nil, generatedName, code, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, []Diagnostic{generatedParseDiagnostic(err, res.Map)}
	}

	return &unit{
		code:      code,
		program:   program,
		positions: newPositions(program.File, res.Map),
	}, nil
}

func parseDiagnostic(msg api.Message) Diagnostic {
	d := Diagnostic{Kind: KindParseError, Message: msg.Text, Line: 1, Column: 1}
	if msg.Location != nil {
		d.Line = msg.Location.Line
		d.Column = msg.Location.Column + 1
	}
	return d
}

// generatedParseDiagnostic covers output the script parser rejects even though
// the transform accepted it, e.g. syntax newer than the runtime supports.
func generatedParseDiagnostic(err error, sourceMap []byte) Diagnostic {
	d := Diagnostic{Kind: KindParseError, Message: err.Error(), Line: 1, Column: 1}

	var perr *parser.Error
	if list, ok := err.(parser.ErrorList); ok && len(list) > 0 {
		perr = list[0]
	}
	if perr == nil {
		return d
	}
	d.Message = perr.Message
	d.Line, d.Column = perr.Position.Line, perr.Position.Column

	if c, err := sourcemap.Parse(sourceName+".map", sourceMap); err == nil {
		if _, _, line, col, ok := c.Source(d.Line, d.Column-1); ok {
			d.Line, d.Column = line, col+1
		}
	}
	return d
}

// positions maps offsets in generated code to 1-based original positions.
type positions struct {
	file     *file.File
	consumer *sourcemap.Consumer
}

func newPositions(f *file.File, sourceMap []byte) *positions {
	p := &positions{file: f}
	if len(sourceMap) > 0 {
		if c, err := sourcemap.Parse(sourceName+".map", sourceMap); err == nil {
			p.consumer = c
		}
	}
	return p
}

// original returns the original line and column for a generated index. ok is
// false when the index falls in code the transform synthesized.
func (p *positions) original(idx file.Idx) (line, column int, ok bool) {
	gen := p.file.Position(int(idx) - p.file.Base())
	if p.consumer == nil {
		return gen.Line, gen.Column, true
	}
	_, _, line, col, ok := p.consumer.Source(gen.Line, gen.Column-1)
	if !ok {
		return 0, 0, false
	}
	return line, col + 1, true
}
