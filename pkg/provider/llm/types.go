package llm

// Roles used in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool

	// SupportsSafetySettings indicates the backend honours
	// [CompletionRequest.Safety].
	SupportsSafetySettings bool
}

// HarmCategory names a class of content the backend may filter.
type HarmCategory string

// Harm categories understood by providers with configurable safety filters.
const (
	HarmHateSpeech       HarmCategory = "hate_speech"
	HarmDangerousContent HarmCategory = "dangerous_content"
	HarmSexuallyExplicit HarmCategory = "sexually_explicit"
	HarmHarassment       HarmCategory = "harassment"
)

// SafetyThreshold is the probability level at or above which content in a
// category is blocked.
type SafetyThreshold string

// Thresholds from most to least permissive.
const (
	BlockNone           SafetyThreshold = "none"
	BlockOnlyHigh       SafetyThreshold = "only_high"
	BlockMediumAndAbove SafetyThreshold = "medium_and_above"
	BlockLowAndAbove    SafetyThreshold = "low_and_above"
)

// SafetySetting pairs a harm category with its blocking threshold.
type SafetySetting struct {
	Category  HarmCategory
	Threshold SafetyThreshold
}
