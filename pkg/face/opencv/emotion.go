package opencv

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-affect/pkg/face"
)

// FERPlusLabels is the output order of the FER+ ONNX model
// (emotion-ferplus-8.onnx from the ONNX model zoo).
var FERPlusLabels = []string{
	"neutral", "happiness", "surprise", "sadness",
	"anger", "disgust", "fear", "contempt",
}

// ferInput is the square grayscale input the model expects.
const ferInput = 64

// EmotionClassifier scores a face crop over the FER+ label set.
type EmotionClassifier struct {
	net    gocv.Net
	labels []string
	mu     sync.Mutex
}

// NewEmotionClassifier loads the FER+ ONNX model.
func NewEmotionClassifier(modelPath string) (*EmotionClassifier, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load emotion model from %s", modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &EmotionClassifier{net: net, labels: FERPlusLabels}, nil
}

// Classify returns normalised emotion names mapped to probabilities that
// sum to 1. faceImg is a BGR crop.
func (c *EmotionClassifier) Classify(faceImg gocv.Mat) (map[string]float64, error) {
	if faceImg.Empty() {
		return nil, fmt.Errorf("empty face region")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(faceImg, &gray, gocv.ColorBGRToGray)

	// FER+ takes raw 0-255 intensities, no mean subtraction.
	blob := gocv.BlobFromImage(gray, 1.0, image.Pt(ferInput, ferInput), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.mu.Lock()
	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	c.mu.Unlock()
	defer out.Close()

	logits, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(logits) < len(c.labels) {
		return nil, fmt.Errorf("unexpected output size %d", len(logits))
	}
	return scores(c.labels, logits[:len(c.labels)]), nil
}

// Close releases the network.
func (c *EmotionClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}

// scores applies softmax to logits and keys the result by normalised label.
func scores(labels []string, logits []float32) map[string]float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, float64(l))
	}

	var sum float64
	exp := make([]float64, len(logits))
	for i, l := range logits {
		exp[i] = math.Exp(float64(l) - maxLogit)
		sum += exp[i]
	}

	out := make(map[string]float64, len(labels))
	for i, label := range labels {
		out[face.NormalizeLabel(label)] += exp[i] / sum
	}
	return out
}
