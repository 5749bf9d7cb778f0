package llmprovider

// ProviderID represents a unique provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderAnthropic is Anthropic's Claude API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderOpenAI is OpenAI's GPT API
	ProviderOpenAI ProviderID = "openai"

	// ProviderGoogle is Google's Gemini API
	ProviderGoogle ProviderID = "google"

	// ProviderXAI is xAI's Grok API (OpenAI-compatible)
	ProviderXAI ProviderID = "xai"

	// ProviderGroq is Groq's inference API (OpenAI-compatible)
	ProviderGroq ProviderID = "groq"

	// ProviderOpenRouter is OpenRouter's unified API (OpenAI-compatible)
	ProviderOpenRouter ProviderID = "openrouter"

	// ProviderBedrock is AWS Bedrock's Converse API
	ProviderBedrock ProviderID = "bedrock"

	// ProviderLorem is the mock Lorem provider for testing
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderXAI,
		ProviderGroq, ProviderOpenRouter, ProviderBedrock, ProviderLorem:
		return true
	default:
		return false
	}
}

// KnownProviders lists every provider the library ships.
func KnownProviders() []ProviderID {
	return []ProviderID{
		ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderXAI,
		ProviderGroq, ProviderOpenRouter, ProviderBedrock, ProviderLorem,
	}
}
