package orchestrator

import (
	"strings"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
)

const fixClosing = "Fix every problem listed above. Return the COMPLETE corrected component, not a diff or a partial snippet."

// FixPrompt renders compiler diagnostics as instructions for the next fix
// attempt. It depends on nothing but diags.
func FixPrompt(diags []compiler.Diagnostic) string {
	if len(diags) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("The code failed to compile.\n\n")
	b.WriteString(compiler.RenderReport(diags))
	b.WriteString("\n\n")
	b.WriteString(fixClosing)
	return b.String()
}

// ValidationFixPrompt renders a validator rejection as fix instructions
func ValidationFixPrompt(reason string) string {
	var b strings.Builder
	b.WriteString("The code was rejected before compiling: ")
	b.WriteString(reason)
	b.WriteString("\n\nThe component must use `export default function Name() { ... }`, return JSX, and import only react, react-dom, recharts, framer-motion and lucide-react.\n\n")
	b.WriteString(fixClosing)
	return b.String()
}
