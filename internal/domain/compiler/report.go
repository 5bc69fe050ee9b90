package compiler

import "strings"

const unsupportedRemediation = `The runtime only supports React, React DOM, Recharts, Framer Motion and Lucide icons.

Suggestions:
1. Build the visualization from plain React components, HTML/CSS or Recharts
2. Add interaction and animation with SVG, the Canvas API or Framer Motion
3. Do not depend on other third-party libraries (axios, lodash and the like)

Example: draw with <svg> paths, Recharts components or Framer Motion's <motion.div>.`

const undefinedRemediation = `Declare or import every identifier before use. Only React, its hooks and standard browser globals are available without an import.`

// Remediation returns the fixed advice shown with diagnostics of kind k.
// Parse errors carry no advice beyond their message.
func Remediation(k Kind) string {
	switch k {
	case KindUnsupportedDependency:
		return unsupportedRemediation
	case KindUndefinedIdentifier:
		return undefinedRemediation
	default:
		return ""
	}
}

// RenderReport formats diagnostics for humans and for the fix prompt. The
// structured list stays on Result; this is only its rendering.
func RenderReport(diags []Diagnostic) string {
	if len(diags) == 0 {
		return ""
	}

	var b strings.Builder
	kind := diags[0].Kind

	switch kind {
	case KindUnsupportedDependency:
		b.WriteString("Unsupported third-party libraries detected:\n\n")
		for _, d := range diags {
			b.WriteString("  - ")
			b.WriteString(d.Name)
			b.WriteByte('\n')
		}
	default:
		for i, d := range diags {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(d.String())
		}
		b.WriteByte('\n')
	}

	if advice := Remediation(kind); advice != "" {
		b.WriteByte('\n')
		b.WriteString(advice)
	}
	return strings.TrimRight(b.String(), "\n")
}
