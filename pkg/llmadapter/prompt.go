package llmadapter

import (
	"fmt"
	"strings"
)

// buildPrompt renders the user-turn text sent alongside the forced
// classify_name tool call: the name to classify plus a handful of
// retrieved exemplars, when the Learning Store had any.
func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classify the following South African business lead director's name by calling classify_name.\n\nName: %s\n", req.Name.Original)

	if len(req.Exemplars) > 0 {
		b.WriteString("\nPrior verified examples for reference:\n")
		for _, ex := range req.Exemplars {
			fmt.Fprintf(&b, "- %q -> %s\n", ex.Name, ex.Ethnicity)
		}
	}

	b.WriteString("\nRespond only by calling classify_name with your best judgment. If you cannot determine an ethnicity with reasonable confidence, call classify_name with ethnicity \"unknown\" and confidence 0.")
	return b.String()
}

const systemPrompt = "You classify South African person names into a closed set of broad ethnicity categories for demographic lead analysis. You must always respond by calling the classify_name tool exactly once. Never respond with free text."
