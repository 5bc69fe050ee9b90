package orchestrator

import (
	"context"
	"strings"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/validator"
)

// Profile selects the generation persona
type Profile string

const (
	ProfileLively       Profile = "LIVELY"
	ProfileProfessional Profile = "PROFESSIONAL"
	ProfileRefusal      Profile = "REFUSAL"
)

// ParseProfile maps a classifier answer onto a profile. Anything
// unrecognised is LIVELY.
func ParseProfile(s string) Profile {
	switch Profile(strings.ToUpper(strings.TrimSpace(s))) {
	case ProfileProfessional:
		return ProfileProfessional
	case ProfileRefusal:
		return ProfileRefusal
	default:
		return ProfileLively
	}
}

// Message is one conversation turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest asks the model for a first component. A non-empty
// CurrentCode puts the model in edit mode.
type GenerateRequest struct {
	Messages    []Message
	CurrentCode string
	Profile     Profile
}

// FixRequest asks the model to repair the previous attempt
type FixRequest struct {
	PreviousSource string
	Instructions   string
	Profile        Profile
}

// Completion is the model's answer to a GenerateRequest. Code may still be
// wrapped in markdown fences.
type Completion struct {
	Explanation string `json:"explanation"`
	Code        string `json:"code"`
	Thought     string `json:"thought,omitempty"`
}

// Model is the language model collaborator
type Model interface {
	Classify(ctx context.Context, query string) (Profile, error)
	Generate(ctx context.Context, req GenerateRequest) (*Completion, error)
	Fix(ctx context.Context, req FixRequest) (string, error)
}

// Validator is the static gate run before compiling
type Validator interface {
	Validate(src string) validator.Result
}

// Compiler turns validated source into executable script
type Compiler interface {
	Compile(src string) compiler.Result
}
