package compiler

// globalAllowlist names identifiers that resolve without a local binding in
// the sandbox: the UI library and its hooks, a narrow subset of browser
// globals, and language built-ins.
var globalAllowlist = map[string]struct{}{
	// browser
	"window":                {},
	"document":              {},
	"console":               {},
	"navigator":             {},
	"location":              {},
	"history":               {},
	"localStorage":          {},
	"sessionStorage":        {},
	"fetch":                 {},
	"setTimeout":            {},
	"setInterval":           {},
	"clearTimeout":          {},
	"clearInterval":         {},
	"requestAnimationFrame": {},
	"cancelAnimationFrame":  {},

	// UI library
	"React":         {},
	"ReactDOM":      {},
	"Fragment":      {},
	"useState":      {},
	"useEffect":     {},
	"useRef":        {},
	"useMemo":       {},
	"useCallback":   {},
	"useContext":    {},
	"createContext": {},

	// built-ins
	"Math":      {},
	"Date":      {},
	"Array":     {},
	"Object":    {},
	"String":    {},
	"Number":    {},
	"Boolean":   {},
	"RegExp":    {},
	"Set":       {},
	"Map":       {},
	"WeakMap":   {},
	"WeakSet":   {},
	"Symbol":    {},
	"BigInt":    {},
	"JSON":      {},
	"Intl":      {},
	"Promise":   {},
	"Error":     {},
	"TypeError": {},
	"NaN":       {},
	"Infinity":  {},
	"undefined": {},
}

// wrapperBindings are provided by the executable wrapper around user code.
var wrapperBindings = map[string]struct{}{
	"require": {},
	"module":  {},
	"exports": {},
}

// Allowed reports whether name resolves globally inside the sandbox.
func Allowed(name string) bool {
	_, ok := globalAllowlist[name]
	return ok
}

// hookNames are destructured from the UI library by the wrapper.
var hookNames = []string{
	"useState",
	"useEffect",
	"useRef",
	"useMemo",
	"useCallback",
	"useContext",
	"createContext",
	"Fragment",
}
