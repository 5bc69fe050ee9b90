package llm

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/orchestrator"
	"github.com/pelletier/go-toml/v2"
)

//go:embed prompts.toml
var defaultPrompts []byte

// Profile is the system prompt and sampling temperature of one persona
type Profile struct {
	System      string  `toml:"system"`
	Temperature float64 `toml:"temperature"`
}

// Prompts holds every prompt the client sends
type Prompts struct {
	Classifier string             `toml:"classifier"`
	EditMode   string             `toml:"edit_mode"`
	FixMode    string             `toml:"fix_mode"`
	Profiles   map[string]Profile `toml:"profiles"`
}

// DefaultPrompts parses the embedded prompt file
func DefaultPrompts() (*Prompts, error) {
	return ParsePrompts(defaultPrompts)
}

// ParsePrompts decodes a prompt file. Every profile must be present.
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if strings.TrimSpace(p.Classifier) == "" {
		return nil, fmt.Errorf("parse prompts: classifier prompt is empty")
	}
	for _, name := range []orchestrator.Profile{
		orchestrator.ProfileLively,
		orchestrator.ProfileProfessional,
		orchestrator.ProfileRefusal,
	} {
		if strings.TrimSpace(p.Profiles[string(name)].System) == "" {
			return nil, fmt.Errorf("parse prompts: profile %s has no system prompt", name)
		}
	}
	return &p, nil
}

// Profile returns the persona for profile, falling back to LIVELY
func (p *Prompts) Profile(profile orchestrator.Profile) Profile {
	if pr, ok := p.Profiles[string(profile)]; ok {
		return pr
	}
	return p.Profiles[string(orchestrator.ProfileLively)]
}

// render substitutes {{name}} placeholders in one pass, so substituted text
// is never expanded again
func render(tmpl string, vars ...string) string {
	pairs := make([]string, 0, len(vars))
	for i := 0; i+1 < len(vars); i += 2 {
		pairs = append(pairs, "{{"+vars[i]+"}}", vars[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(strings.TrimSpace(tmpl))
}
