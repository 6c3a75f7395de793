package affect

import "math"

// Generation parameter defaults and bounds.
const (
	DefaultTemperature = 0.6
	DefaultTopP        = 0.85

	// BaseMaxTokens is the response budget at zero engagement.
	BaseMaxTokens = 275
	// EngagementTokenSpan is added at full engagement.
	EngagementTokenSpan = 50
)

type sampling struct {
	temperature float64
	topP        float64
}

var (
	focused   = sampling{temperature: 0.55, topP: 0.8}
	expansive = sampling{temperature: 0.65, topP: 0.9}
)

// emotionSampling narrows sampling for emotions that call for a more focused
// or a more exploratory answer. Unlisted emotions use the defaults.
var emotionSampling = map[string]sampling{
	"frustrated": focused,
	"confused":   focused,
	"angry":      focused,
	"sad":        focused,
	"fear":       focused,
	"happy":      expansive,
	"surprise":   expansive,
}

// SelectParameters maps the learner's emotion and engagement to sampling
// parameters. Engagement is clamped to [0,1], so MaxTokens always lies in
// [275, 325].
func SelectParameters(emotion string, engagement float64) Parameters {
	p := Parameters{
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   MaxTokensFor(engagement),
	}
	if s, ok := emotionSampling[normalizeEmotion(emotion)]; ok {
		p.Temperature = s.temperature
		p.TopP = s.topP
	}
	return p
}

// ParametersFor selects parameters from an interpreted context.
func ParametersFor(c Context) Parameters {
	return SelectParameters(c.Emotion, c.Engagement)
}

// MaxTokensFor returns 275 + round(engagement*50) with engagement clamped.
func MaxTokensFor(engagement float64) int {
	if math.IsNaN(engagement) {
		engagement = DefaultMetric
	}
	e := math.Max(0, math.Min(1, engagement))
	return BaseMaxTokens + int(math.Round(e*EngagementTokenSpan))
}
