// Package affect turns biometric and self-reported affect signals into a
// structured description of the learner plus bounded generation parameters.
//
// Everything in this package is pure: the same inputs always produce the same
// Context and Parameters, and missing or malformed inputs degrade to defaults
// instead of failing.
package affect

// Default values used when a signal is absent.
const (
	DefaultEmotion   = "neutral"
	DefaultIntensity = 0.5
	DefaultMetric    = 0.5
)

// Snapshot is a biometric reading as posted by the webcam client.
// Every field is optional.
type Snapshot struct {
	Emotion  *EmotionReading `json:"emotion,omitempty"`
	Metrics  *MetricReading  `json:"metrics,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
	Webcam   *WebcamReading  `json:"webcam,omitempty"`
}

// EmotionReading is the classified facial emotion.
type EmotionReading struct {
	Name      string   `json:"name,omitempty"`
	Intensity *float64 `json:"intensity,omitempty"`
}

// MetricReading holds the derived attention metrics, conventionally 0-1.
type MetricReading struct {
	Engagement    *float64 `json:"engagement,omitempty"`
	Attention     *float64 `json:"attention,omitempty"`
	CognitiveLoad *float64 `json:"cognitive_load,omitempty"`
}

// Metadata describes where the snapshot came from.
type Metadata struct {
	Source string `json:"source,omitempty"`
}

// WebcamReading carries the detector's own confidence.
type WebcamReading struct {
	Confidence *float64 `json:"confidence,omitempty"`
}

// CognitiveState is the flat, self-reported fallback used by older clients.
type CognitiveState struct {
	Emotion       string   `json:"emotion,omitempty"`
	Engagement    *float64 `json:"engagement,omitempty"`
	Attention     *float64 `json:"attention,omitempty"`
	CognitiveLoad *float64 `json:"cognitiveLoad,omitempty"`
}

// Origin records which input a Context was derived from.
type Origin string

const (
	OriginNone           Origin = "none"
	OriginSnapshot       Origin = "biometric_snapshot"
	OriginCognitiveState Origin = "cognitive_state"
)

// Context is the interpreted affect of the learner for one request.
type Context struct {
	// Sentences are natural-language statements and directives, in order.
	Sentences []string

	Emotion            string
	Intensity          float64
	Engagement         float64
	Attention          float64
	CognitiveLoad      float64
	CognitiveLoadLevel Tier

	// Confidence is the webcam detector confidence, when reported.
	Confidence *float64

	Source string
	Origin Origin

	// Degraded is set when the input could not be interpreted and defaults
	// were substituted.
	Degraded bool
}

// Parameters are the sampling settings handed to the text generator.
type Parameters struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}
