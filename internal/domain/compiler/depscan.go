package compiler

import (
	"fmt"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
	"github.com/dop251/goja/ast"
)

// requireSite is one require("target") call in the generated script.
type requireSite struct {
	call   *ast.CallExpression
	target string
}

// requireSites returns every require call with a string literal argument in
// source order. Static imports, require calls and dynamic imports all lower
// to this form.
func requireSites(program *ast.Program) []requireSite {
	var sites []requireSite
	inspect(program, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpression)
		if !ok || len(call.ArgumentList) == 0 {
			return true
		}
		callee, ok := call.Callee.(*ast.Identifier)
		if !ok || callee.Name.String() != "require" {
			return true
		}
		if lit, ok := call.ArgumentList[0].(*ast.StringLiteral); ok {
			sites = append(sites, requireSite{call: call, target: lit.Value.String()})
		}
		return true
	})
	return sites
}

// scanDependencies reports one UnsupportedDependency per canonical package
// that is not in the table, in first-seen order.
func scanDependencies(u *unit, table *deps.Table) []Diagnostic {
	var diags []Diagnostic
	seen := make(map[string]struct{})

	for _, site := range requireSites(u.program) {
		if deps.IsRelative(site.target) || table.Supported(site.target) {
			continue
		}
		pkg := deps.Canonical(site.target)
		if _, dup := seen[pkg]; dup {
			continue
		}
		seen[pkg] = struct{}{}

		line, col, ok := u.positions.original(site.call.Idx0())
		if !ok {
			line, col = 1, 1
		}
		diags = append(diags, Diagnostic{
			Kind:    KindUnsupportedDependency,
			Name:    pkg,
			Message: fmt.Sprintf("unsupported dependency '%s'", pkg),
			Line:    line,
			Column:  col,
		})
	}
	return diags
}
