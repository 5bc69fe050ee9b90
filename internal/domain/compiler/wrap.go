package compiler

import (
	"regexp"
	"strings"
)

// EntryPoint is the conventional component name tried when the source does
// not name its default export.
const EntryPoint = "App"

// DefaultAlias holds module.exports.default inside the wrapper.
const DefaultAlias = "default_1"

const (
	errReactMissing = "React not properly loaded. window.React="
	errNoComponent  = "No component found. Please export a default component."
)

var defaultNameRe = regexp.MustCompile(`export\s+default\s+(?:async\s+)?(?:function|class)\s+(\w+)`)

// ComponentName extracts the name from `export default function|class Name`
// in the original source. It falls back to EntryPoint.
func ComponentName(src string) string {
	if m := defaultNameRe.FindStringSubmatch(src); m != nil {
		return m[1]
	}
	return EntryPoint
}

// wrap embeds the rewritten script in a self-contained IIFE that mounts the
// resolved component and reports the outcome to the parent window.
func wrap(code, name string) string {
	var b strings.Builder
	b.Grow(len(code) + 1024)

	b.WriteString("(function () {\n")
	b.WriteString("  var React = window.React;\n")
	b.WriteString("  if (!React || typeof React.createElement !== 'function') {\n")
	b.WriteString("    throw new Error('" + errReactMissing + "' + typeof window.React);\n")
	b.WriteString("  }\n")
	hooks := make([]string, len(hookNames))
	for i, h := range hookNames {
		hooks[i] = h + " = React." + h
	}
	b.WriteString("  var " + strings.Join(hooks, ", ") + ";\n")
	b.WriteString("  var ReactDOM = window.ReactDOM;\n")
	b.WriteString("  var module = { exports: {} };\n")
	b.WriteString("  var exports = module.exports;\n")
	b.WriteString("  var require = function (name) {\n")
	b.WriteString("    throw new Error(\"Cannot find module '\" + name + \"'\");\n")
	b.WriteString("  };\n\n")
	b.WriteString("  try {\n")
	// unindented so template literals keep their exact content
	b.WriteString(code)
	b.WriteString("\n\n")
	b.WriteString("    var " + DefaultAlias + " = module.exports && module.exports[\"default\"];\n")
	b.WriteString("    var __component =\n")
	if name != EntryPoint {
		b.WriteString("      typeof " + name + " !== 'undefined' ? " + name + " :\n")
	}
	b.WriteString("      typeof " + EntryPoint + " !== 'undefined' ? " + EntryPoint + " :\n")
	b.WriteString("      " + DefaultAlias + ";\n")
	b.WriteString("    if (!__component) {\n")
	b.WriteString("      throw new Error('" + errNoComponent + "');\n")
	b.WriteString("    }\n")
	b.WriteString("    var __root = ReactDOM.createRoot(document.getElementById('root'));\n")
	b.WriteString("    __root.render(React.createElement(__component));\n")
	b.WriteString("    window.parent.postMessage({ type: 'executionReady' }, '*');\n")
	b.WriteString("  } catch (error) {\n")
	b.WriteString("    window.parent.postMessage({\n")
	b.WriteString("      type: 'executionError',\n")
	b.WriteString("      message: error && error.message ? error.message : String(error),\n")
	b.WriteString("      stack: error && error.stack ? String(error.stack) : undefined\n")
	b.WriteString("    }, '*');\n")
	b.WriteString("  }\n")
	b.WriteString("})();\n")
	return b.String()
}
