package vision

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/observability"
)

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"
)

// Extractor produces the signature of the most confident face in an image.
// Sessions share their tensors, so calls are serialised.
type Extractor struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewExtractor loads both models from cfg.ModelsDir. The ONNX runtime must
// already be initialised.
func NewExtractor(cfg config.VisionConfig) (*Extractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, detectorModel)
	embPath := filepath.Join(cfg.ModelsDir, embedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Extractor{detector: det, embedder: emb}, nil
}

// Extract returns found=false when the bytes are not a decodable image or
// contain no face. Errors are inference failures.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]float32, bool, error) {
	img, format, err := decodeImage(data)
	if err != nil {
		slog.Warn("unreadable image", "error", err, "size", len(data))
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := img.Bounds()
	start := time.Now()
	input := preprocessForDetection(img, e.detector.inputW, e.detector.inputH)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	dets, err := e.detector.Detect(input, b.Dx(), b.Dy())
	if err != nil {
		return nil, false, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	best, ok := mostConfident(dets)
	if !ok {
		slog.Debug("no face in image", "format", format, "width", b.Dx(), "height", b.Dy())
		return nil, false, nil
	}

	face := cropFace(img, best.BBox)
	if face == nil {
		return nil, false, nil
	}

	start = time.Now()
	sig, err := e.embedder.Embed(preprocessForEmbedding(face, e.embedder.inputW, e.embedder.inputH))
	if err != nil {
		return nil, false, fmt.Errorf("embed: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	return sig, true, nil
}

// mostConfident picks the single face used for resolution. Ties go to the
// larger box.
func mostConfident(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence || (d.Confidence == best.Confidence && d.Area() > best.Area()) {
			best = d
		}
	}
	return best, true
}

// Close releases the ONNX sessions.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector != nil {
		e.detector.Close()
	}
	if e.embedder != nil {
		e.embedder.Close()
	}
}
