package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teslashibe/go-affect/pkg/affect"
	"github.com/teslashibe/go-affect/pkg/aggregate"
	"github.com/teslashibe/go-affect/pkg/face"
)

const (
	statusSuccess    = "success"
	statusProcessing = "processing"
	statusNoData     = "no_data"
	statusReady      = "ready"
	statusError      = "error"
)

// ChatRequest is the body of POST /api/chat. The affect fields are kept raw
// so a malformed reading degrades to defaults instead of failing the request.
type ChatRequest struct {
	Message           string          `json:"message" validate:"required"`
	CognitiveState    json.RawMessage `json:"cognitive_state,omitempty"`
	BiometricSnapshot json.RawMessage `json:"biometric_snapshot,omitempty"`
}

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	Message        string         `json:"message"`
	Timestamp      float64        `json:"timestamp"`
	ParametersUsed ParametersUsed `json:"parameters_used"`
}

// ParametersUsed echoes the sampling settings chosen for the reply.
type ParametersUsed struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	MaxTokens       int     `json:"max_tokens"`
	EmotionDetected string  `json:"emotion_detected"`
	Source          string  `json:"source"`
	Model           string  `json:"model"`
}

// DetectFaceRequest is the body of POST /api/detect-face.
type DetectFaceRequest struct {
	Image string `json:"image" validate:"required"`
	Sync  bool   `json:"sync"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status string  `json:"status"`
	Model  *string `json:"model"`
	Error  *string `json:"error"`
}

// TurnDTO is one conversation turn on the wire.
type TurnDTO struct {
	Role      string  `json:"role"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// ConversationResponse is the body of GET /api/conversation.
type ConversationResponse struct {
	Turns        []TurnDTO `json:"turns"`
	Count        int       `json:"count"`
	LastResponse *float64  `json:"last_response"`
}

type frameEvent struct {
	Status    string      `json:"status"`
	Timestamp float64     `json:"timestamp"`
	Result    face.Result `json:"result"`
}

type aggregateResponse struct {
	aggregate.Report
	Timestamp float64 `json:"timestamp"`
}

type systemInfoResponse struct {
	face.SystemInfo
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

type errorBody struct {
	Error     string  `json:"error"`
	Timestamp float64 `json:"timestamp"`
}

type rateLimitBody struct {
	Error      string  `json:"error"`
	RetryAfter float64 `json:"retry_after"`
	Timestamp  float64 `json:"timestamp"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names in messages.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage turns validator output into a client-facing sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// affectInputs decodes the optional affect fields one leaf at a time. A leaf
// with the wrong type is dropped and reported by path so the caller can log
// it; its siblings still count. A field that is not an object at all is
// dropped whole.
func (r *ChatRequest) affectInputs() (snap *affect.Snapshot, cs *affect.CognitiveState, bad []string) {
	d := &fieldDecoder{}
	if root, ok := d.object("biometric_snapshot", r.BiometricSnapshot); ok {
		snap = &affect.Snapshot{}
		if em, ok := d.object("biometric_snapshot.emotion", root["emotion"]); ok {
			snap.Emotion = &affect.EmotionReading{
				Name:      d.str("biometric_snapshot.emotion.name", em["name"]),
				Intensity: d.float("biometric_snapshot.emotion.intensity", em["intensity"]),
			}
		}
		if m, ok := d.object("biometric_snapshot.metrics", root["metrics"]); ok {
			snap.Metrics = &affect.MetricReading{
				Engagement:    d.float("biometric_snapshot.metrics.engagement", m["engagement"]),
				Attention:     d.float("biometric_snapshot.metrics.attention", m["attention"]),
				CognitiveLoad: d.float("biometric_snapshot.metrics.cognitive_load", m["cognitive_load"]),
			}
		}
		if md, ok := d.object("biometric_snapshot.metadata", root["metadata"]); ok {
			snap.Metadata = &affect.Metadata{Source: d.str("biometric_snapshot.metadata.source", md["source"])}
		}
		if w, ok := d.object("biometric_snapshot.webcam", root["webcam"]); ok {
			snap.Webcam = &affect.WebcamReading{Confidence: d.float("biometric_snapshot.webcam.confidence", w["confidence"])}
		}
	}
	if root, ok := d.object("cognitive_state", r.CognitiveState); ok {
		cs = &affect.CognitiveState{
			Emotion:       d.str("cognitive_state.emotion", root["emotion"]),
			Engagement:    d.float("cognitive_state.engagement", root["engagement"]),
			Attention:     d.float("cognitive_state.attention", root["attention"]),
			CognitiveLoad: d.float("cognitive_state.cognitiveLoad", root["cognitiveLoad"]),
		}
	}
	return snap, cs, d.bad
}

// fieldDecoder decodes JSON leaves independently and collects the paths of
// the ones that fail.
type fieldDecoder struct {
	bad []string
}

func (d *fieldDecoder) object(path string, raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if !hasValue(raw) {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		d.bad = append(d.bad, path)
		return nil, false
	}
	return m, true
}

func (d *fieldDecoder) float(path string, raw json.RawMessage) *float64 {
	if !hasValue(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		d.bad = append(d.bad, path)
		return nil
	}
	return &v
}

func (d *fieldDecoder) str(path string, raw json.RawMessage) string {
	if !hasValue(raw) {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		d.bad = append(d.bad, path)
		return ""
	}
	return v
}

func hasValue(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v != "" && v != "null"
}
