package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// decodeImage decodes any registered format (jpeg, png, gif, bmp, webp).
func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

func preprocessForDetection(img image.Image, w, h int) []float32 {
	return toCHW(img, w, h, [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128})
}

func preprocessForEmbedding(img image.Image, w, h int) []float32 {
	return toCHW(img, w, h, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// toCHW resizes img to w x h and lays it out as planar RGB normalised
// with (pixel - mean) / std.
func toCHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	rgba := resize(img, w, h)
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			i := y*w + x
			out[i] = (float32(px[0]) - mean[0]) / std[0]
			out[plane+i] = (float32(px[1]) - mean[1]) / std[1]
			out[2*plane+i] = (float32(px[2]) - mean[2]) / std[2]
		}
	}
	return out
}

// resize scales img into a new w x h RGBA with bilinear filtering.
func resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// cropFace cuts the box out of img with 10% padding on every side, clamped
// to the image. It returns nil for an empty box.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	b := img.Bounds()
	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).Intersect(b)
	if r.Empty() {
		return nil
	}

	padW, padH := r.Dx()/10, r.Dy()/10
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(b)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(crop, image.Point{}, img, r, draw.Src, nil)
	return crop
}
