package generate

import (
	"errors"

	"github.com/MrWong99/parley/pkg/provider/embeddings"
	"github.com/MrWong99/parley/pkg/provider/llm"
)

// Tier names a model class. Call sites pick a tier, never a model name.
type Tier int

const (
	// TierFlash is the fast model used for scene dialogue.
	TierFlash Tier = iota
	// TierPro is the strong model used for memory summaries.
	TierPro
	// TierText is the model used for single-shot review and utility calls.
	TierText
)

// String returns the lower-case tier name.
func (t Tier) String() string {
	switch t {
	case TierFlash:
		return "flash"
	case TierPro:
		return "pro"
	case TierText:
		return "text"
	default:
		return "unknown"
	}
}

// Models binds each tier to a provider. It is built once at start-up.
type Models struct {
	Flash llm.Provider
	Pro   llm.Provider
	Text  llm.Provider

	Embeddings embeddings.Provider
}

// For returns the provider for tier. A tier without a provider falls back
// to Text, then to Flash.
func (m Models) For(t Tier) llm.Provider {
	var p llm.Provider
	switch t {
	case TierFlash:
		p = m.Flash
	case TierPro:
		p = m.Pro
	case TierText:
		p = m.Text
	}
	if p == nil {
		p = m.Text
	}
	if p == nil {
		p = m.Flash
	}
	return p
}

// Validate reports an error when no LLM provider is configured at all.
func (m Models) Validate() error {
	if m.Flash == nil && m.Pro == nil && m.Text == nil {
		return errors.New("generate: no LLM provider configured")
	}
	return nil
}
