package opencv

import (
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-affect/pkg/face"
)

// placeholderSize is the side of the black frame used when decoding fails.
const placeholderSize = 100

// Config selects and tunes the analysis backends. Empty paths disable the
// corresponding stage.
type Config struct {
	Detector         string  // "cascade" (default) or "yunet"
	CascadePath      string  // Haar cascade XML
	YuNetPath        string  // YuNet ONNX model
	EmotionModelPath string  // FER+ ONNX model
	ScaleFactor      float64 // cascade scale step (default 1.1)
	MinNeighbors     int     // cascade neighbours (default 4)
	ConfidenceThresh float64 // YuNet score threshold (default 0.5)
	Logger           *slog.Logger
}

// DefaultConfig returns the default model locations.
func DefaultConfig() Config {
	return Config{
		Detector:         DetectorCascade,
		CascadePath:      "models/haarcascade_frontalface_default.xml",
		YuNetPath:        "models/face_detection_yunet.onnx",
		EmotionModelPath: "models/emotion-ferplus-8.onnx",
		ScaleFactor:      1.1,
		MinNeighbors:     4,
		ConfidenceThresh: 0.5,
		Logger:           slog.Default(),
	}
}

// Analyzer implements face.Analyzer. It never fails: missing models and bad
// frames produce fallback results.
type Analyzer struct {
	detector   Detector
	classifier *EmotionClassifier
	logger     *slog.Logger
	detName    string
	clock      func() time.Time
}

// New builds an Analyzer. A detector or classifier that cannot be loaded is
// logged and left out; the analyzer still serves neutral results.
func New(cfg Config) *Analyzer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Analyzer{
		logger:  cfg.Logger.With("component", "face.opencv"),
		detName: cfg.Detector,
		clock:   time.Now,
	}

	var err error
	switch cfg.Detector {
	case DetectorYuNet:
		a.detector, err = NewYuNet(cfg.YuNetPath, cfg.ConfidenceThresh)
	default:
		a.detName = DetectorCascade
		a.detector, err = NewCascade(cfg.CascadePath, cfg.ScaleFactor, cfg.MinNeighbors)
	}
	if err != nil {
		a.logger.Warn("face detector unavailable", "detector", a.detName, "error", err)
		a.detector = nil
	}

	if cfg.EmotionModelPath != "" {
		c, err := NewEmotionClassifier(cfg.EmotionModelPath)
		if err != nil {
			a.logger.Warn("emotion classifier unavailable", "error", err)
		} else {
			a.classifier = c
		}
	}

	a.logger.Info("face analyzer ready",
		"detector", a.detName,
		"detector_loaded", a.detector != nil,
		"classifier_loaded", a.classifier != nil,
		"opencv", gocv.OpenCVVersion(),
	)
	return a
}

// NewWith builds an Analyzer from already constructed stages. Either may be
// nil.
func NewWith(detector Detector, classifier *EmotionClassifier, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	name := ""
	if detector != nil {
		name = detector.Name()
	}
	return &Analyzer{
		detector:   detector,
		classifier: classifier,
		logger:     logger.With("component", "face.opencv"),
		detName:    name,
		clock:      time.Now,
	}
}

// Analyze decodes the frame, detects faces and classifies the largest one.
func (a *Analyzer) Analyze(payload string) (res face.Result) {
	start := a.clock()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("face analysis panic", "panic", r)
			res = face.Fallback(fmt.Sprintf("face analysis panic: %v", r))
		}
		res.ProcessingMs = float64(a.clock().Sub(start).Microseconds()) / 1000
	}()

	if payload == "" {
		return face.Fallback("invalid image data")
	}

	img, decodeErr := decodeFrame(payload)
	defer img.Close()
	if decodeErr != nil {
		a.logger.Warn("frame decode failed, using placeholder", "error", decodeErr)
	}

	res = a.analyzeMat(img)
	if decodeErr != nil && res.Error == "" {
		res.Error = decodeErr.Error()
	}
	return res
}

func (a *Analyzer) analyzeMat(img gocv.Mat) face.Result {
	if a.detector == nil {
		res := face.Detected(nil)
		res.Error = "face detector unavailable"
		return res
	}

	rects := a.detector.Detect(img)
	boxes := make([]face.Box, len(rects))
	for i, r := range rects {
		boxes[i] = face.Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
	}
	if len(boxes) == 0 || a.classifier == nil {
		return face.Detected(boxes)
	}

	target := rects[largest(boxes)]
	if target.Empty() {
		res := face.Detected(boxes)
		res.Error = "face region is empty"
		return res
	}

	crop := img.Region(target)
	defer crop.Close()

	emotions, err := a.classifier.Classify(crop)
	if err != nil {
		a.logger.Warn("emotion classification failed", "error", err)
		res := face.Detected(boxes)
		res.Error = fmt.Sprintf("emotion analysis error: %v", err)
		return res
	}

	return face.Result{
		FacesDetected: len(boxes),
		Emotion:       face.Dominant(emotions),
		Emotions:      emotions,
		FaceLocations: boxes,
	}
}

// Describe reports backend versions and what was loaded.
func (a *Analyzer) Describe() face.SystemInfo {
	return face.SystemInfo{
		OpenCVVersion:       gocv.OpenCVVersion(),
		GoCVVersion:         gocv.Version(),
		Detector:            a.detName,
		DetectorLoaded:      a.detector != nil,
		ClassifierAvailable: a.classifier != nil,
	}
}

// Close releases all loaded models.
func (a *Analyzer) Close() error {
	var firstErr error
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			firstErr = err
		}
	}
	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// decodeFrame decodes the wire payload to a BGR Mat. On any failure it
// returns a black placeholder frame together with the error.
func decodeFrame(payload string) (gocv.Mat, error) {
	data, err := face.DecodePayload(payload)
	if err != nil {
		return placeholder(), err
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return placeholder(), fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return placeholder(), fmt.Errorf("decode image: unsupported format")
	}
	return img, nil
}

func placeholder() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), placeholderSize, placeholderSize, gocv.MatTypeCV8UC3)
}

// largest returns the index of the biggest box.
func largest(boxes []face.Box) int {
	best := 0
	for i, b := range boxes {
		if b.Area() > boxes[best].Area() {
			best = i
		}
	}
	return best
}

var (
	_ face.Analyzer  = (*Analyzer)(nil)
	_ face.Describer = (*Analyzer)(nil)
)
