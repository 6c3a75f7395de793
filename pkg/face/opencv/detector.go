// Package opencv implements face.Analyzer with gocv: frame decoding, face
// detection (Haar cascade or YuNet) and an optional FER+ emotion classifier.
package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// Detector names accepted by Config.Detector.
const (
	DetectorCascade = "cascade"
	DetectorYuNet   = "yunet"
)

// Detector finds face rectangles in a BGR frame.
type Detector interface {
	// Detect returns face boxes in pixel coordinates.
	Detect(img gocv.Mat) []image.Rectangle

	// Name identifies the backend in logs and system info.
	Name() string

	// Close releases resources
	Close() error
}

// CascadeDetector uses a Haar cascade, the classic OpenCV frontal face model.
type CascadeDetector struct {
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
	mu           sync.Mutex
}

// NewCascade loads a Haar cascade XML file such as
// haarcascade_frontalface_default.xml.
func NewCascade(path string, scaleFactor float64, minNeighbors int) (*CascadeDetector, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("cascade file not found: %s", path)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade from %s", path)
	}

	if scaleFactor <= 1 {
		scaleFactor = 1.1
	}
	if minNeighbors <= 0 {
		minNeighbors = 4
	}
	return &CascadeDetector{
		classifier:   classifier,
		scaleFactor:  scaleFactor,
		minNeighbors: minNeighbors,
		minSize:      image.Pt(30, 30),
	}, nil
}

// Detect runs the cascade on the grayscale frame.
func (d *CascadeDetector) Detect(img gocv.Mat) []image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	return d.classifier.DetectMultiScaleWithParams(
		gray, d.scaleFactor, d.minNeighbors, 0, d.minSize, image.Point{},
	)
}

// Name returns "cascade".
func (d *CascadeDetector) Name() string { return DetectorCascade }

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a YuNet face detector from an ONNX model such as
// face_detection_yunet_2023mar.onnx.
func NewYuNet(modelPath string, confidence float64) (*YuNetDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if confidence <= 0 {
		confidence = 0.5
	}

	// Input size is reset per frame.
	detector := gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"",
		image.Pt(320, 320),
		float32(confidence),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &YuNetDetector{detector: detector}, nil
}

// Detect finds faces in the frame.
func (d *YuNetDetector) Detect(img gocv.Mat) []image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// YuNet rows: 0-3 box (pixels), 4-13 landmarks, 14 score.
	rects := make([]image.Rectangle, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		rects = append(rects, image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, img.Cols(), img.Rows())))
	}
	return rects
}

// Name returns "yunet".
func (d *YuNetDetector) Name() string { return DetectorYuNet }

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

var (
	_ Detector = (*CascadeDetector)(nil)
	_ Detector = (*YuNetDetector)(nil)
)
