package affect

import (
	"fmt"
	"slices"
)

// signals is the discretized view of a Context that directive rules match on.
type signals struct {
	emotion       string
	engagement    Tier
	attention     Tier
	cognitiveLoad Tier
}

// predicateKind tags the variant held by a predicate.
type predicateKind int

const (
	cognitiveLoadIs predicateKind = iota
	attentionIs
	engagementIs
	emotionIn
	allOf
	not
)

// predicate is a tagged variant over the affect signals. Only the fields
// relevant to kind are set.
type predicate struct {
	kind     predicateKind
	tier     Tier
	emotions []string
	operands []predicate
}

func loadIs(t Tier) predicate         { return predicate{kind: cognitiveLoadIs, tier: t} }
func attnIs(t Tier) predicate         { return predicate{kind: attentionIs, tier: t} }
func engIs(t Tier) predicate          { return predicate{kind: engagementIs, tier: t} }
func emotionOf(e ...string) predicate { return predicate{kind: emotionIn, emotions: e} }
func both(p ...predicate) predicate   { return predicate{kind: allOf, operands: p} }
func negate(p predicate) predicate    { return predicate{kind: not, operands: []predicate{p}} }

func (p predicate) match(s signals) bool {
	switch p.kind {
	case cognitiveLoadIs:
		return s.cognitiveLoad == p.tier
	case attentionIs:
		return s.attention == p.tier
	case engagementIs:
		return s.engagement == p.tier
	case emotionIn:
		return slices.Contains(p.emotions, s.emotion)
	case allOf:
		for _, op := range p.operands {
			if !op.match(s) {
				return false
			}
		}
		return true
	case not:
		return !p.operands[0].match(s)
	default:
		return false
	}
}

// Directive names, exposed so callers and tests can tell which rules fired.
const (
	DirectiveHighCognitiveLoad = "high_cognitive_load"
	DirectiveLowAttention      = "low_attention"
	DirectiveNegativeEmotion   = "negative_emotion"
	DirectiveSad               = "sad"
	DirectiveFear              = "fear"
	DirectiveHappyMomentum     = "happy_momentum"
	DirectiveReengage          = "reengage"
	DirectiveSimplify          = "simplify"
)

// rule pairs a predicate with the directive it contributes.
type rule struct {
	name   string
	when   predicate
	render func(s signals) string
}

func fixed(text string) func(signals) string {
	return func(signals) string { return text }
}

// directiveRules are evaluated in order and every match contributes.
var directiveRules = []rule{
	{
		name:   DirectiveHighCognitiveLoad,
		when:   loadIs(TierHigh),
		render: fixed("MANDATORY: Open your response by acknowledging that this material is demanding a lot of mental effort right now."),
	},
	{
		name:   DirectiveLowAttention,
		when:   attnIs(TierLow),
		render: fixed("MANDATORY: Open your response by gently acknowledging that their attention seems to be wandering, and invite them back to the topic."),
	},
	{
		name: DirectiveNegativeEmotion,
		when: emotionOf("confused", "frustrated", "angry"),
		render: func(s signals) string {
			return fmt.Sprintf("MANDATORY: Open your response by acknowledging that they seem %s, naming that feeling directly before anything else.", s.emotion)
		},
	},
	{
		name:   DirectiveSad,
		when:   emotionOf("sad"),
		render: fixed("MANDATORY: Open your response with an empathetic acknowledgment of how they are feeling."),
	},
	{
		name:   DirectiveFear,
		when:   emotionOf("fear"),
		render: fixed("MANDATORY: Open your response with reassurance that it is fine to find this difficult and that you will work through it together."),
	},
	{
		name:   DirectiveHappyMomentum,
		when:   both(emotionOf("happy"), engIs(TierHigh)),
		render: fixed("MANDATORY: Open your response by building on their positive energy and momentum."),
	},
	{
		name:   DirectiveReengage,
		when:   both(emotionOf(DefaultEmotion), engIs(TierLow)),
		render: fixed("MANDATORY: Open your response with a question or hook that re-engages them with the topic."),
	},
	{
		name:   DirectiveSimplify,
		when:   both(emotionOf(DefaultEmotion), negate(engIs(TierLow)), loadIs(TierHigh)),
		render: fixed("MANDATORY: Open your response by offering to simplify the material or break it into smaller steps."),
	},
}

// Directive is one fired rule.
type Directive struct {
	Name string
	Text string
}

// directivesFor evaluates the rule table against s.
func directivesFor(s signals) []Directive {
	var out []Directive
	for _, r := range directiveRules {
		if r.when.match(s) {
			out = append(out, Directive{Name: r.name, Text: r.render(s)})
		}
	}
	return out
}

// Directives returns the directives that fire for the given context, in
// precedence order.
func Directives(c Context) []Directive {
	if c.Origin != OriginSnapshot || c.Degraded {
		return nil
	}
	return directivesFor(c.signals())
}

func (c Context) signals() signals {
	return signals{
		emotion:       c.Emotion,
		engagement:    ClassifyTier(c.Engagement),
		attention:     ClassifyTier(c.Attention),
		cognitiveLoad: ClassifyTier(c.CognitiveLoad),
	}
}
