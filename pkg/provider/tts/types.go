package tts

// Request describes one synthesis call.
type Request struct {
	// Text is the markup (or plain text) to speak.
	Text string

	// VoiceID is the provider-specific voice identifier. Required.
	VoiceID string

	// Model optionally overrides the provider's default model.
	Model string

	// Language is the BCP-47 tag of the text, e.g. "hi-IN". Providers may
	// ignore it.
	Language string
}

// Audio is an encoded audio clip returned by a provider.
type Audio struct {
	// Data holds the encoded bytes.
	Data []byte

	// ContentType is the MIME type of Data, e.g. "audio/mpeg".
	ContentType string

	// Model is the model that produced the clip, when known.
	Model string
}

// Voice describes a voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `json:"provider"`

	// Metadata holds provider-specific attributes (category, accent, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}
