// Package validator is the cheap textual gate applied to freshly generated
// component source before it reaches the compiler.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
)

// Result is the outcome of a validation pass.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Failure reasons.
const (
	ReasonEmpty        = "Code is empty"
	ReasonNoDefault    = "Code must contain 'export default'"
	ReasonNoComponent  = "Code must contain a component"
	ReasonNoMarkup     = "Component must return JSX"
	reasonForbiddenFmt = "Forbidden import: %s"
)

var (
	defaultExportRe = regexp.MustCompile(`export\s+default\s+`)
	defaultSpecRe   = regexp.MustCompile(`export\s*\{[^}]*\b\w+\s+as\s+default\b[^}]*\}`)
	functionRe      = regexp.MustCompile(`function\s*\*?\s*\w*\s*\(`)
	arrowRe         = regexp.MustCompile(`(?:const|let|var)\s+\w+\s*(?::[^=]+)?=\s*(?:async\s*)?(?:\([^)]*\)|\w+)\s*(?::[^=]+)?=>`)
	classRe         = regexp.MustCompile(`class\s+\w+(?:\s+extends\s+[\w.]+)?\s*\{`)
	markupReturnRe  = regexp.MustCompile(`return\s*\(?\s*<`)
	staticImportRe  = regexp.MustCompile(`import\s+(?:type\s+)?(?:[\w\s{},*$]+\s+from\s+)?['"]([^'"]+)['"]`)
	requireRe       = regexp.MustCompile(`\brequire\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	dynamicImportRe = regexp.MustCompile(`\bimport\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	leadingFenceRe  = regexp.MustCompile("(?i)^```(?:jsx?|tsx?|javascript|typescript)?[ \t]*\n?")
	trailingFenceRe = regexp.MustCompile("\n?```[ \t]*$")
)

// Validator checks candidate source against the structural rules a sandbox
// component has to satisfy.
type Validator struct {
	deps *deps.Table
}

// New creates a validator backed by the given dependency table. A nil table
// selects the embedded default.
func New(table *deps.Table) *Validator {
	if table == nil {
		table = deps.Default()
	}
	return &Validator{deps: table}
}

// Validate runs the checks in order and reports the first violation.
func (v *Validator) Validate(src string) Result {
	if strings.TrimSpace(src) == "" {
		return fail(ReasonEmpty)
	}

	if !defaultExportRe.MatchString(src) && !defaultSpecRe.MatchString(src) {
		return fail(ReasonNoDefault)
	}

	if !functionRe.MatchString(src) && !arrowRe.MatchString(src) && !classRe.MatchString(src) {
		return fail(ReasonNoComponent)
	}

	if !markupReturnRe.MatchString(src) {
		return fail(ReasonNoMarkup)
	}

	for _, pkg := range ImportTargets(src) {
		if deps.IsRelative(pkg) {
			continue
		}
		if !v.deps.Supported(pkg) {
			return fail(fmt.Sprintf(reasonForbiddenFmt, deps.Canonical(pkg)))
		}
	}

	return Result{Valid: true}
}

// Validate checks src against the embedded dependency table.
func Validate(src string) Result {
	return New(nil).Validate(src)
}

// ImportTargets lists every module specifier referenced by static imports,
// require calls and dynamic imports, in source order per form.
func ImportTargets(src string) []string {
	var targets []string
	for _, re := range []*regexp.Regexp{staticImportRe, requireRe, dynamicImportRe} {
		for _, m := range re.FindAllStringSubmatch(src, -1) {
			targets = append(targets, m[1])
		}
	}
	return targets
}

// StripFences removes a markdown code fence wrapped around model output.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = leadingFenceRe.ReplaceAllString(text, "")
	text = trailingFenceRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func fail(reason string) Result {
	return Result{Valid: false, Reason: reason}
}
