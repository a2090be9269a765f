package vision

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodeImage(t *testing.T) {
	src := solid(4, 3, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	var pngBuf, bmpBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, src))
	require.NoError(t, bmp.Encode(&bmpBuf, src))

	for name, data := range map[string][]byte{"png": pngBuf.Bytes(), "bmp": bmpBuf.Bytes()} {
		t.Run(name, func(t *testing.T) {
			img, format, err := decodeImage(data)
			require.NoError(t, err)
			assert.Equal(t, name, format)
			assert.Equal(t, 4, img.Bounds().Dx())
			assert.Equal(t, 3, img.Bounds().Dy())
		})
	}

	_, _, err := decodeImage([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestToCHW_LayoutAndNormalisation(t *testing.T) {
	img := solid(8, 8, color.RGBA{R: 255, G: 127, B: 0, A: 255})

	out := toCHW(img, 2, 2, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})

	require.Len(t, out, 12)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 255, out[i], 1, "red plane")
		assert.InDelta(t, 127, out[4+i], 1, "green plane")
		assert.InDelta(t, 0, out[8+i], 1, "blue plane")
	}

	emb := preprocessForEmbedding(img, 2, 2)
	assert.InDelta(t, 1.0, emb[0], 0.01)
	assert.InDelta(t, -1.0, emb[8], 0.01)
}

func TestCropFace(t *testing.T) {
	img := solid(100, 100, color.RGBA{A: 255})

	crop := cropFace(img, [4]float32{20, 20, 70, 70})
	require.NotNil(t, crop)
	assert.Equal(t, 60, crop.Bounds().Dx(), "10% padding each side")

	edge := cropFace(img, [4]float32{-10, -10, 30, 30})
	require.NotNil(t, edge)
	assert.Equal(t, 33, edge.Bounds().Dx(), "clamped to image then padded right only")

	assert.Nil(t, cropFace(img, [4]float32{50, 50, 50, 80}))
	assert.Nil(t, cropFace(img, [4]float32{200, 200, 300, 300}))
}

func TestNMS(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.6},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.7},
	}

	kept := nms(dets, 0.4)

	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Confidence)
	assert.Equal(t, float32(0.7), kept[1].Confidence)
}

func TestIoU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	assert.InDelta(t, 1.0, iou(a, a), 1e-6)
	assert.InDelta(t, 0.0, iou(a, [4]float32{20, 20, 30, 30}), 1e-6)
	assert.InDelta(t, 25.0/175.0, iou(a, [4]float32{5, 5, 15, 15}), 1e-6)
}

func TestDecodeStride(t *testing.T) {
	// 2x2 feature map at stride 8 over a 16x16 input, 2 anchors per cell.
	n := 2 * 2 * anchorsPerStride
	scores := make([]float32, n)
	boxes := make([]float32, n*4)
	marks := make([]float32, n*10)

	// anchor index 6 is cell (x=1, y=1), first anchor
	scores[6] = 0.8
	copy(boxes[6*4:], []float32{0.5, 0.5, 0.5, 0.5})

	dets := decodeStride(scores, boxes, marks, 8, 16, 16, 0.5, 2, 2, 32, 32)

	require.Len(t, dets, 1)
	assert.Equal(t, float32(0.8), dets[0].Confidence)
	// centre (8,8), +-4 px, scaled x2
	assert.Equal(t, [4]float32{8, 8, 24, 24}, dets[0].BBox)
	assert.Equal(t, [2]float32{16, 16}, dets[0].Landmarks[0])
}

func TestMostConfident(t *testing.T) {
	_, ok := mostConfident(nil)
	assert.False(t, ok)

	best, ok := mostConfident([]Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.8},
		{BBox: [4]float32{0, 0, 20, 20}, Confidence: 0.8},
		{BBox: [4]float32{0, 0, 5, 5}, Confidence: 0.7},
	})
	require.True(t, ok)
	assert.Equal(t, float32(400), best.Area())
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, v, 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestExtract_UndecodableIsNoFace(t *testing.T) {
	e := &Extractor{}

	sig, found, err := e.Extract(context.Background(), []byte("garbage"))

	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, sig)
}
