package identify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1024
	DefaultJPEGQuality  = 80
)

// PrepareImage decodes raw, scales it so the longest side is at most maxDim
// and re-encodes it as JPEG. Anything that cannot be decoded or encoded
// yields ErrImageEncodingFailed.
func PrepareImage(raw []byte, maxDim, quality int) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrImageEncodingFailed)
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageEncodingFailed, err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrImageEncodingFailed)
	}

	out := src
	if w > maxDim || h > maxDim {
		nw, nh := maxDim, maxDim
		if w >= h {
			nh = max(1, h*maxDim/w)
		} else {
			nw = max(1, w*maxDim/h)
		}
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageEncodingFailed, err)
	}
	return buf.Bytes(), nil
}

func dataURL(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
}
