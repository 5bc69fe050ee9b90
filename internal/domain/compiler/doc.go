/*
Package compiler turns generated component source into a script the sandbox
can execute.

# Pipeline

Each stage gates the next. The first stage that fails determines the result.

	parse        TSX/JSX/TypeScript -> CommonJS (esbuild), with source map
	dependencies every require("pkg") checked against the deps table
	identifiers  lexical scope resolution over the generated script (goja AST)
	rewrite      require("pkg") -> window.<Global>
	wrap         IIFE that mounts the component and posts the outcome

Diagnostics always carry 1-based line and column positions in the original
source. Positions inside code the transform synthesizes (module helpers) have
no original position and are never reported.

# Usage

	c := compiler.New(nil).WithMetrics(metrics)
	res := c.Compile(src)
	if !res.Success {
		fmt.Println(compiler.RenderReport(res.Diagnostics))
	}

Results are values. CachedCompiler hands the same Result to every caller that
compiles identical source, so callers must not modify its Diagnostics.
*/
package compiler
