package llm

import (
	"fmt"
	"strings"

	"github.com/sellerpulse/backend/internal/storage/models"
)

// FallbackAnswer synthesizes the degraded-mode reply used when the
// generative backend fails or times out. It lists the retrieved
// sources, in rank order, and nothing else: no identifier or fact that
// was not already retrieved may appear in the output.
func FallbackAnswer(sources []models.RetrievedSource) string {
	if len(sources) == 0 {
		return "I could not produce an answer right now. Please try again shortly."
	}

	var b strings.Builder
	b.WriteString("I could not generate a full answer right now, but here is the most relevant data I found:\n")

	for i, s := range sources {
		b.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, s.Type, s.Label))
	}

	b.WriteString("Please try again shortly for a complete answer.")

	return b.String()
}
