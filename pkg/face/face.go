// Package face defines the result of analysing one webcam frame and the
// interface the frame pipeline uses to obtain it. Concrete backends live in
// subpackages (see face/opencv).
package face

import (
	"maps"
	"slices"
	"sort"
	"strings"
)

// Neutral is the emotion reported when nothing better is known.
const Neutral = "neutral"

// Box is a face bounding box in pixel coordinates of the decoded frame.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the box area in pixels.
func (b Box) Area() int {
	return b.Width * b.Height
}

// Result is the outcome of analysing one frame. A Result is always produced,
// even when decoding or classification failed; Error then says why.
type Result struct {
	FacesDetected int                `json:"faces_detected"`
	Emotion       string             `json:"emotion"`
	Emotions      map[string]float64 `json:"emotions"`
	FaceLocations []Box              `json:"face_locations"`
	Error         string             `json:"error,omitempty"`
	ProcessingMs  float64            `json:"processing_ms"`
}

// Clone returns a copy of r that shares no map or slice with it.
func (r Result) Clone() Result {
	r.Emotions = maps.Clone(r.Emotions)
	r.FaceLocations = slices.Clone(r.FaceLocations)
	return r
}

// Analyzer turns an encoded image string into a Result. Implementations
// must not panic for bad input and must be safe for concurrent use: the
// pipeline worker and synchronous requests call Analyze at the same time.
type Analyzer interface {
	Analyze(payload string) Result
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(payload string) Result

// Analyze calls f.
func (f AnalyzerFunc) Analyze(payload string) Result { return f(payload) }

// SystemInfo describes the analysis backend for /api/system-info.
type SystemInfo struct {
	OpenCVVersion       string `json:"opencv_version"`
	GoCVVersion         string `json:"gocv_version"`
	Detector            string `json:"detector"`
	DetectorLoaded      bool   `json:"detector_loaded"`
	ClassifierAvailable bool   `json:"classifier_available"`
}

// Describer is implemented by analyzers that can report backend details.
type Describer interface {
	Describe() SystemInfo
}

// Fallback is the safe default: no faces, neutral, annotated with reason.
func Fallback(reason string) Result {
	return Result{
		Emotion:       Neutral,
		Emotions:      map[string]float64{Neutral: 1.0},
		FaceLocations: []Box{},
		Error:         reason,
	}
}

// Detected reports faces without an emotion estimate.
func Detected(boxes []Box) Result {
	if boxes == nil {
		boxes = []Box{}
	}
	return Result{
		FacesDetected: len(boxes),
		Emotion:       Neutral,
		Emotions:      map[string]float64{Neutral: 1.0},
		FaceLocations: boxes,
	}
}

// Dominant returns the highest-scoring tag. Ties go to the alphabetically
// first tag so the answer does not depend on map order. An empty map yields
// Neutral.
func Dominant(scores map[string]float64) string {
	if len(scores) == 0 {
		return Neutral
	}
	tags := make([]string, 0, len(scores))
	for tag := range scores {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	best := tags[0]
	for _, tag := range tags[1:] {
		if scores[tag] > scores[best] {
			best = tag
		}
	}
	return best
}

// labelAliases maps classifier vocabularies onto the emotion names the rest
// of the system uses (affect directives, sampling table).
var labelAliases = map[string]string{
	"happiness": "happy",
	"sadness":   "sad",
	"anger":     "angry",
	"surprised": "surprise",
	"fearful":   "fear",
	"disgusted": "disgust",
}

// NormalizeLabel lowercases a classifier label and maps known synonyms.
func NormalizeLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if alias, ok := labelAliases[l]; ok {
		return alias
	}
	if l == "" {
		return Neutral
	}
	return l
}
