package compiler

import (
	"sort"
	"strings"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
)

type splice struct {
	start, end int
	text       string
}

// rewrite replaces every supported require("pkg") call with the preloaded
// global for that package. Named imports then read properties off the
// global and default imports alias it, so no module loader is needed.
func rewrite(u *unit, table *deps.Table) string {
	base := u.program.File.Base()

	var edits []splice
	for _, site := range requireSites(u.program) {
		global, ok := table.Global(site.target)
		if !ok {
			continue
		}
		edits = append(edits, splice{
			start: int(site.call.Idx0()) - base,
			end:   int(site.call.Idx1()) - base,
			text:  "window." + global,
		})
	}
	if len(edits) == 0 {
		return u.code
	}

	// apply back to front so earlier offsets stay valid
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })

	out := u.code
	for _, e := range edits {
		if e.start < 0 || e.end > len(out) || e.start >= e.end {
			continue
		}
		out = out[:e.start] + e.text + out[e.end:]
	}
	return strings.TrimSpace(out)
}
