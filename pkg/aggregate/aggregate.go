// Package aggregate summarises recent frame results over a sliding time
// window: how often each emotion was dominant, mean per-emotion confidence,
// and how often a face was seen.
package aggregate

import (
	"errors"
	"math"
	"time"

	"github.com/teslashibe/go-affect/pkg/face"
	"github.com/teslashibe/go-affect/pkg/pipeline"
)

// DefaultWindow is the window used when the caller does not choose one.
const DefaultWindow = 5 * time.Second

// Report statuses.
const (
	StatusSuccess = "success"
	StatusNoData  = "no_data"
)

// MaxWindow is the longest window a Duration can hold in whole seconds.
// Longer requests are capped to it.
const MaxWindow = time.Duration(math.MaxInt64/int64(time.Second)) * time.Second

// ErrInvalidWindow is returned by ParseWindow for unusable values.
var ErrInvalidWindow = errors.New("aggregate: window must be a positive number of seconds")

// Report is the aggregate over one window.
type Report struct {
	Status             string             `json:"status"`
	WindowSeconds      float64            `json:"window_seconds"`
	TotalFrames        int                `json:"total_frames"`
	FramesWithFaces    int                `json:"frames_with_faces"`
	FaceDetectionRate  float64            `json:"face_detection_rate"`
	DominantEmotion    string             `json:"dominant_emotion"`
	EmotionFrequencies map[string]float64 `json:"emotion_frequencies"`
	AverageConfidences map[string]float64 `json:"average_confidences"`
}

// Compute aggregates entries with At >= now-window. Entries are expected in
// history order (oldest first); ties for the dominant emotion go to the tag
// seen first.
func Compute(entries []pipeline.Entry, now time.Time, window time.Duration) Report {
	cutoff := now.Add(-window)

	counts := map[string]int{}
	confidence := map[string]float64{}
	var order []string
	total, withFaces := 0, 0

	for _, e := range entries {
		if e.At.Before(cutoff) {
			continue
		}
		total++
		if e.Result.FacesDetected > 0 {
			withFaces++
		}

		tag := e.Result.Emotion
		if tag == "" {
			tag = face.Neutral
		}
		if _, seen := counts[tag]; !seen {
			order = append(order, tag)
		}
		counts[tag]++

		for name, c := range e.Result.Emotions {
			confidence[name] += c
		}
	}

	report := Report{WindowSeconds: window.Seconds()}
	if total == 0 {
		report.Status = StatusNoData
		return report
	}

	report.Status = StatusSuccess
	report.TotalFrames = total
	report.FramesWithFaces = withFaces
	report.FaceDetectionRate = float64(withFaces) / float64(total)

	report.EmotionFrequencies = make(map[string]float64, len(counts))
	for tag, n := range counts {
		report.EmotionFrequencies[tag] = float64(n) / float64(total)
	}

	// Averaged over all frames in the window, not only those reporting the tag.
	report.AverageConfidences = make(map[string]float64, len(confidence))
	for tag, sum := range confidence {
		report.AverageConfidences[tag] = sum / float64(total)
	}

	report.DominantEmotion = order[0]
	for _, tag := range order[1:] {
		if counts[tag] > counts[report.DominantEmotion] {
			report.DominantEmotion = tag
		}
	}
	return report
}

// ParseWindow converts a seconds value from a query string. Zero means the
// default window; values beyond MaxWindow are capped.
func ParseWindow(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, ErrInvalidWindow
	}
	if seconds == 0 {
		return DefaultWindow, nil
	}
	if seconds >= MaxWindow.Seconds() {
		return MaxWindow, nil
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
