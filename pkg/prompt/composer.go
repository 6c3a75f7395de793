// Package prompt assembles the single text prompt sent to the local model.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-affect/pkg/affect"
	"github.com/teslashibe/go-affect/pkg/conversation"
)

// ContextTurns is how many recent turns are replayed into the prompt.
const ContextTurns = 5

// Speaker labels used inside the prompt.
const (
	UserLabel       = "User"
	InstructorLabel = "AI Instructor"
)

// DefaultPersona is the instructor's standing instructions.
const DefaultPersona = `You are a patient, encouraging AI Instructor helping a learner understand new material.
Keep explanations clear and concrete, check understanding with short questions, and adapt your pace to the learner.
Reply with the instructor's next message only; never write the learner's lines.`

// acknowledgmentBlock is always present. It makes the affect directives
// binding for the model.
const acknowledgmentBlock = `IMPORTANT RESPONSE RULES:
- If the learner state below contains lines starting with MANDATORY, your first sentence MUST follow them, in the order given.
- Acknowledge how the learner seems to be feeling before continuing with the lesson.
- Do not mention cameras, sensors, metrics or numbers when acknowledging their state.`

// Input is everything the composer needs for one prompt.
type Input struct {
	Affect affect.Context

	// Turns is the full conversation; only the last ContextTurns are used.
	Turns []conversation.Turn

	// LastResponse is when the instructor last replied. Zero means never.
	LastResponse time.Time

	// Now is the request time.
	Now time.Time
}

// Composer renders prompts. The zero value uses DefaultPersona.
type Composer struct {
	Persona string
}

// NewComposer creates a composer with the given persona, or the default if
// persona is empty.
func NewComposer(persona string) *Composer {
	return &Composer{Persona: persona}
}

// Compose returns the prompt for in. The result always ends with the
// instructor role cue so the model continues as the instructor.
func (c *Composer) Compose(in Input) string {
	persona := strings.TrimSpace(c.Persona)
	if persona == "" {
		persona = DefaultPersona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(acknowledgmentBlock)
	b.WriteString("\n\n")

	if section := affectSection(in.Affect); section != "" {
		b.WriteString(section)
		b.WriteString("\n\n")
	}

	if !in.LastResponse.IsZero() {
		b.WriteString(LatencySentence(in.Now.Sub(in.LastResponse)))
		b.WriteString("\n\n")
	}

	if history := RenderTurns(Recent(in.Turns, ContextTurns)); history != "" {
		b.WriteString(history)
		b.WriteString("\n")
	}

	b.WriteString(InstructorLabel)
	b.WriteString(":")
	return b.String()
}

func affectSection(c affect.Context) string {
	if len(c.Sentences) == 0 {
		return ""
	}
	lines := make([]string, 0, len(c.Sentences)+2)
	lines = append(lines, "LEARNER STATE:")
	lines = append(lines, c.Sentences...)
	if needsEmphasis(c) {
		lines = append(lines, fmt.Sprintf(
			"The learner's %s state is the most important thing to respond to right now; address it before any new content.",
			c.Emotion))
	}
	return strings.Join(lines, "\n")
}

// needsEmphasis is true for any non-neutral emotion, and for a neutral one
// expressed with intensity above 0.6.
func needsEmphasis(c affect.Context) bool {
	if c.Emotion != affect.DefaultEmotion {
		return true
	}
	return c.Intensity > 0.6
}

// LatencySentence characterises how long the learner took to reply.
func LatencySentence(elapsed time.Duration) string {
	switch {
	case elapsed < 5*time.Second:
		return "The learner replied almost immediately, so keep the pace brisk."
	case elapsed < 15*time.Second:
		return "The learner replied after a short pause."
	case elapsed < time.Minute:
		return "The learner took a while to reply and may have been thinking hard about the last message."
	default:
		return fmt.Sprintf("The learner took %d seconds to reply; briefly recap where you left off.",
			int(elapsed/time.Second))
	}
}

// Recent returns the last n turns.
func Recent(turns []conversation.Turn, n int) []conversation.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// RenderTurns renders turns as "Speaker: text" lines.
func RenderTurns(turns []conversation.Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = Label(t.Role) + ": " + t.Text
	}
	return strings.Join(lines, "\n")
}

// Label returns the prompt speaker label for a role.
func Label(r conversation.Role) string {
	if r == conversation.RoleInstructor {
		return InstructorLabel
	}
	return UserLabel
}

// StopSequences keep the model from writing the learner's next line.
func StopSequences() []string {
	return []string{"\n" + UserLabel + ":"}
}
