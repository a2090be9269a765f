package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face found by the detector, in source image pixels.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Landmarks  [5][2]float32
}

// Area returns the box area in square pixels.
func (d Detection) Area() float32 {
	return max(0, d.BBox[2]-d.BBox[0]) * max(0, d.BBox[3]-d.BBox[1])
}

// Detector runs RetinaFace (det_10g) face detection.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const (
	anchorsPerStride = 2
	nmsIoU           = 0.4
	detInputSize     = 640
)

// det_10g output names, grouped scores, boxes, landmarks per stride.
// No batch dimension; rows per stride = (640/stride)^2 * 2.
var detOutputs = []struct {
	name  string
	shape ort.Shape
}{
	{"448", ort.NewShape(12800, 1)},
	{"471", ort.NewShape(3200, 1)},
	{"494", ort.NewShape(800, 1)},
	{"451", ort.NewShape(12800, 4)},
	{"474", ort.NewShape(3200, 4)},
	{"497", ort.NewShape(800, 4)},
	{"454", ort.NewShape(12800, 10)},
	{"477", ort.NewShape(3200, 10)},
	{"500", ort.NewShape(800, 10)},
}

// NewDetector loads the RetinaFace model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	d := &Detector{
		inputTensor: inputTensor,
		threshold:   threshold,
		inputW:      detInputSize,
		inputH:      detInputSize,
	}

	names := make([]string, len(detOutputs))
	values := make([]ort.Value, len(detOutputs))
	for i, out := range detOutputs {
		t, err := ort.NewEmptyTensor[float32](out.shape)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create output tensor %s: %w", out.name, err)
		}
		names[i] = out.name
		values[i] = t
		d.outputTensors = append(d.outputTensors, t)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{inputTensor}, values,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect runs detection on a CHW tensor of the detector's input size.
// origW and origH scale boxes back to the source image. Results are sorted
// by confidence, highest first, after non-maximum suppression.
func (d *Detector) Detect(chw []float32, origW, origH int) ([]Detection, error) {
	copy(d.inputTensor.GetData(), chw)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	var dets []Detection
	sx := float32(origW) / float32(d.inputW)
	sy := float32(origH) / float32(d.inputH)
	for si, stride := range strides {
		dets = append(dets, decodeStride(
			d.outputTensors[si].GetData(),
			d.outputTensors[si+3].GetData(),
			d.outputTensors[si+6].GetData(),
			stride, d.inputW, d.inputH, d.threshold,
			sx, sy, float32(origW), float32(origH),
		)...)
	}
	return nms(dets, nmsIoU), nil
}

// decodeStride turns the anchor-relative outputs of one feature map into
// boxes. Distances are in stride units from the anchor centre.
func decodeStride(scores, boxes, marks []float32, stride, inW, inH int, threshold, sx, sy, maxX, maxY float32) []Detection {
	var out []Detection
	fmW, fmH := inW/stride, inH/stride
	st := float32(stride)

	idx := 0
	for cy := 0; cy < fmH; cy++ {
		for cx := 0; cx < fmW; cx++ {
			for a := 0; a < anchorsPerStride; a++ {
				if scores[idx] >= threshold {
					ax, ay := float32(cx)*st, float32(cy)*st
					b := boxes[idx*4 : idx*4+4]

					var lm [5][2]float32
					for li := range lm {
						lm[li][0] = (ax + marks[idx*10+li*2]*st) * sx
						lm[li][1] = (ay + marks[idx*10+li*2+1]*st) * sy
					}

					out = append(out, Detection{
						BBox: [4]float32{
							clampF((ax-b[0]*st)*sx, 0, maxX),
							clampF((ay-b[1]*st)*sy, 0, maxY),
							clampF((ax+b[2]*st)*sx, 0, maxX),
							clampF((ay+b[3]*st)*sy, 0, maxY),
						},
						Confidence: scores[idx],
						Landmarks:  lm,
					})
				}
				idx++
			}
		}
	}
	return out
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		t.Destroy()
	}
}

// nms keeps the most confident box of every overlapping group.
func nms(dets []Detection, threshold float32) []Detection {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	var kept []Detection
	for _, d := range dets {
		suppressed := false
		for _, k := range kept {
			if iou(d.BBox, k.BBox) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	w := max(0, min(a[2], b[2])-max(a[0], b[0]))
	h := max(0, min(a[3], b[3])-max(a[1], b[1]))
	inter := w * h

	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
