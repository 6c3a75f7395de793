package affect

import (
	"fmt"
	"math"
	"strings"
)

// Interpret builds the affect context for one request.
//
// A biometric snapshot takes precedence over the flat cognitive state. With
// neither, the returned Context carries defaults and no sentences. Interpret
// never fails: values that cannot be interpreted produce a single diagnostic
// sentence and neutral defaults.
func Interpret(snap *Snapshot, fallback *CognitiveState) Context {
	switch {
	case snap != nil:
		return fromSnapshot(snap)
	case fallback != nil:
		return fromCognitiveState(fallback)
	default:
		return defaults(OriginNone)
	}
}

func defaults(origin Origin) Context {
	return Context{
		Emotion:            DefaultEmotion,
		Intensity:          DefaultIntensity,
		Engagement:         DefaultMetric,
		Attention:          DefaultMetric,
		CognitiveLoad:      DefaultMetric,
		CognitiveLoadLevel: ClassifyTier(DefaultMetric),
		Origin:             origin,
	}
}

func fromSnapshot(snap *Snapshot) Context {
	c := defaults(OriginSnapshot)

	if e := snap.Emotion; e != nil {
		if name := normalizeEmotion(e.Name); name != "" {
			c.Emotion = name
		}
		c.Intensity = valueOr(e.Intensity, DefaultIntensity)
	}
	if m := snap.Metrics; m != nil {
		c.Engagement = valueOr(m.Engagement, DefaultMetric)
		c.Attention = valueOr(m.Attention, DefaultMetric)
		c.CognitiveLoad = valueOr(m.CognitiveLoad, DefaultMetric)
	}
	if snap.Webcam != nil && snap.Webcam.Confidence != nil {
		conf := *snap.Webcam.Confidence
		c.Confidence = &conf
	}
	if snap.Metadata != nil {
		c.Source = strings.TrimSpace(snap.Metadata.Source)
	}

	if field, ok := firstNonFinite(c); !ok {
		return diagnostic(OriginSnapshot, field)
	}

	c.CognitiveLoadLevel = ClassifyTier(c.CognitiveLoad)
	c.Sentences = describe(c)
	for _, d := range directivesFor(c.signals()) {
		c.Sentences = append(c.Sentences, d.Text)
	}
	return c
}

func fromCognitiveState(cs *CognitiveState) Context {
	c := defaults(OriginCognitiveState)
	if name := normalizeEmotion(cs.Emotion); name != "" {
		c.Emotion = name
	}
	c.Engagement = valueOr(cs.Engagement, DefaultMetric)
	c.Attention = valueOr(cs.Attention, DefaultMetric)
	c.CognitiveLoad = valueOr(cs.CognitiveLoad, DefaultMetric)

	if field, ok := firstNonFinite(c); !ok {
		return diagnostic(OriginCognitiveState, field)
	}

	c.CognitiveLoadLevel = ClassifyTier(c.CognitiveLoad)
	c.Sentences = []string{
		fmt.Sprintf("The learner reports feeling %s; acknowledge this feeling at the start of your response.", c.Emotion),
	}
	return c
}

func diagnostic(origin Origin, field string) Context {
	c := defaults(origin)
	c.Degraded = true
	c.Sentences = []string{
		fmt.Sprintf("Affect signals could not be interpreted (invalid %s); respond in a calm, neutral and supportive tone.", field),
	}
	return c
}

func describe(c Context) []string {
	out := []string{
		fmt.Sprintf("The learner appears %s with %s intensity (%.2f).",
			c.Emotion, ClassifyIntensity(c.Intensity), c.Intensity),
		fmt.Sprintf("Engagement is %s (%.2f), attention is %s (%.2f) and cognitive load is %s (%.2f).",
			ClassifyTier(c.Engagement), c.Engagement,
			ClassifyTier(c.Attention), c.Attention,
			c.CognitiveLoadLevel, c.CognitiveLoad),
	}
	if c.Confidence != nil {
		out = append(out, fmt.Sprintf("Webcam detection confidence is %.2f.", *c.Confidence))
	}
	if c.Source != "" {
		out = append(out, fmt.Sprintf("These signals were measured by %s.", c.Source))
	}
	return out
}

func firstNonFinite(c Context) (string, bool) {
	checks := []struct {
		name string
		v    float64
	}{
		{"emotion intensity", c.Intensity},
		{"engagement", c.Engagement},
		{"attention", c.Attention},
		{"cognitive load", c.CognitiveLoad},
	}
	for _, chk := range checks {
		if math.IsNaN(chk.v) || math.IsInf(chk.v, 0) {
			return chk.name, false
		}
	}
	return "", true
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func normalizeEmotion(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
