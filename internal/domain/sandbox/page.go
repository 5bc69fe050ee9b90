package sandbox

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
	"github.com/PuerkitoBio/goquery"
)

// MountID is the id of the single element components mount into
const MountID = "root"

//go:embed assets/sandbox.html
var hostPage []byte

// Page returns the static host page served to sandbox iframes
func Page() []byte {
	return bytes.Clone(hostPage)
}

// ValidatePage checks that page has exactly one mount root, a bridge script,
// and a script tag for every global the dependency table maps imports to.
func ValidatePage(page []byte, table *deps.Table) error {
	if table == nil {
		table = deps.Default()
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return fmt.Errorf("parse host page: %w", err)
	}

	if n := doc.Find("#" + MountID).Length(); n != 1 {
		return fmt.Errorf("host page has %d #%s elements, want 1", n, MountID)
	}
	if doc.Find("script#bridge").Length() != 1 {
		return fmt.Errorf("host page has no bridge script")
	}

	loaded := make(map[string]bool)
	doc.Find("script[data-global]").Each(func(_ int, s *goquery.Selection) {
		loaded[s.AttrOr("data-global", "")] = true
	})
	for _, global := range table.Globals() {
		if !loaded[global] {
			return fmt.Errorf("host page does not load %s", global)
		}
	}
	return nil
}
