package orchestrator

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/attemptlog"
)

// ErrNoMessages is returned for a request without conversation turns
var ErrNoMessages = errors.New("messages are required")

var friendlyMessages = []string{
	"The canvas got tangled up this time. Try asking again, maybe a little differently?",
	"That idea was trickier to draw than expected. Could you rephrase it?",
	"The painter dropped the brush. Give it another go in a moment.",
	"This one did not come out right. Try a simpler version of the question.",
	"Something went wrong while sketching your visualization. Please try again.",
}

// GenerationError is returned when the retry budget is spent without a
// compiling component
type GenerationError struct {
	Friendly  string
	Technical string
	Attempts  []attemptlog.Attempt
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %s", len(e.Attempts), e.Technical)
}

func friendlyMessage() string {
	return friendlyMessages[rand.IntN(len(friendlyMessages))]
}
