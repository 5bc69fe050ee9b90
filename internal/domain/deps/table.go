// Package deps holds the Supported Dependency Set: the fixed list of packages
// the sandbox page preloads as window globals, and the specifier-to-global
// mapping the compiler rewrites imports with.
//
// The table is a configuration artifact (deps.yaml) rather than code so the
// sandbox page and the compiler can be kept in step by editing one file.
package deps

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
)

//go:embed deps.yaml
var defaultTable []byte

// Table maps import specifiers to the window global that serves them.
type Table struct {
	// Host is the UI library the sandbox always preloads.
	Host string `yaml:"host"`
	// Packages maps a specifier (package or package/subpath) to a global name.
	Packages map[string]string `yaml:"packages"`

	supported map[string]struct{}
}

var (
	defaultOnce sync.Once
	defaultTbl  *Table
)

// Default returns the embedded table. It panics if the embedded file is
// malformed, which is a build defect rather than a runtime condition.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultTable)
		if err != nil {
			panic(fmt.Sprintf("deps: embedded table: %v", err))
		}
		defaultTbl = t
	})
	return defaultTbl
}

// Parse decodes a YAML dependency table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse dependency table: %w", err)
	}
	if len(t.Packages) == 0 {
		return nil, fmt.Errorf("dependency table has no packages")
	}
	if t.Host == "" {
		return nil, fmt.Errorf("dependency table has no host library")
	}
	if _, ok := t.Packages[t.Host]; !ok {
		return nil, fmt.Errorf("host library %q is not mapped to a global", t.Host)
	}

	t.supported = make(map[string]struct{}, len(t.Packages))
	for pkg, global := range t.Packages {
		if global == "" {
			return nil, fmt.Errorf("package %q has no global", pkg)
		}
		t.supported[Canonical(pkg)] = struct{}{}
	}
	return &t, nil
}

// Supported reports whether the canonical package of pkg is preloaded.
func (t *Table) Supported(pkg string) bool {
	_, ok := t.supported[Canonical(pkg)]
	return ok
}

// Global returns the window global serving pkg. An exact specifier match
// wins; otherwise the canonical package's global is used.
func (t *Table) Global(pkg string) (string, bool) {
	if g, ok := t.Packages[pkg]; ok {
		return g, true
	}
	g, ok := t.Packages[Canonical(pkg)]
	return g, ok
}

// HostGlobal returns the global of the host UI library.
func (t *Table) HostGlobal() string {
	return t.Packages[t.Host]
}

// Names returns the supported canonical package names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.supported))
	for name := range t.supported {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Globals returns the distinct global names, sorted.
func (t *Table) Globals() []string {
	seen := make(map[string]struct{}, len(t.Packages))
	var globals []string
	for _, g := range t.Packages {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		globals = append(globals, g)
	}
	sort.Strings(globals)
	return globals
}

// Canonical reduces an import specifier to its package identity. Scoped
// packages keep their scope ("@org/x/y" -> "@org/x"); unscoped packages drop
// any subpath ("lodash/fp" -> "lodash").
func Canonical(pkg string) string {
	parts := strings.Split(pkg, "/")
	if strings.HasPrefix(pkg, "@") {
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return pkg
	}
	return parts[0]
}

// IsRelative reports whether pkg points into the local tree rather than at a
// package.
func IsRelative(pkg string) bool {
	return strings.HasPrefix(pkg, ".") || strings.HasPrefix(pkg, "/")
}
