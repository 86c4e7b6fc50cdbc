package llm

import "strings"

// ModelLimit is the context window and output cap of the models whose
// lower-cased name starts with Prefix.
type ModelLimit struct {
	Prefix          string
	ContextWindow   int
	MaxOutputTokens int
}

// LookupCapabilities returns base with the limits of the first entry in
// table whose prefix matches model. Order the table from most to least
// specific prefix.
func LookupCapabilities(model string, base ModelCapabilities, table []ModelLimit) ModelCapabilities {
	name := strings.ToLower(model)
	for _, l := range table {
		if strings.HasPrefix(name, l.Prefix) {
			base.ContextWindow = l.ContextWindow
			base.MaxOutputTokens = l.MaxOutputTokens
			break
		}
	}
	return base
}
