package summarize

import (
	"fmt"
	"strings"

	"github.com/briefcast-io/briefcast/internal/pipeline"
)

const systemPrompt = `You summarize activity digests for busy people. You respond with a single JSON object and nothing else: no code fences, no commentary. Schema:
{"headline": "<one sentence, at most 140 characters>", "bullets": ["<2 to 6 bullets, each at most 280 characters>"]}
Never invent facts that are not in the input. Prefer concrete names, numbers and outcomes over vague phrasing.`

// verbosityHint maps a recipient verbosity preference to prompt guidance.
// Advisory only; the schema ceilings are enforced after generation.
func verbosityHint(verbosity string) string {
	switch verbosity {
	case "compact":
		return "Be as terse as possible: short headline, 2-3 bullets."
	case "detailed":
		return "Use the full bullet budget when the input justifies it."
	default:
		return "Aim for a balanced digest: 3-4 bullets."
	}
}

// GenerationPrompt renders the prepared window as the user message for the
// first generation attempt.
func GenerationPrompt(prepared *pipeline.PreparedWindow, verbosity string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this activity window for the recipient. %s\n\n", verbosityHint(verbosity))

	if len(prepared.Items) == 0 {
		b.WriteString("No activity in this window.\n")
		return b.String()
	}

	for i, item := range prepared.Items {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, item.Topic, item.Title)
		for _, fact := range item.Facts {
			fmt.Fprintf(&b, "   - %s\n", fact)
		}
		if item.Link != "" {
			fmt.Fprintf(&b, "   link: %s\n", item.Link)
		}
	}
	return b.String()
}

// RepairPrompt asks the model to fix a schema-invalid response. Sent at most
// once per summary; a second invalid response is terminal.
func RepairPrompt(invalid string, violation error) string {
	var b strings.Builder
	b.WriteString("Your previous response violated the required JSON schema.\n")
	fmt.Fprintf(&b, "Violation: %s\n\n", violation)
	b.WriteString("Previous response:\n")
	b.WriteString(invalid)
	b.WriteString("\n\nRespond again with only the corrected JSON object, preserving the factual content.")
	return b.String()
}
